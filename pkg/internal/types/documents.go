// Package types 定义 HTTP 接口的请求与响应结构.
package types

import "time"

// ListDocumentsQuery GET /documents 的查询参数.
type ListDocumentsQuery struct {
	Status string `form:"status"`
	Type   string `form:"type"`
	Limit  int    `form:"limit"  rule:"omitempty,min=0,max=500"`
	Offset int    `form:"offset" rule:"omitempty,min=0"`
}

// SummaryResponse 按状态统计文档数.
type SummaryResponse struct {
	OwnerID string           `json:"ownerId"`
	Counts  map[string]int64 `json:"counts"`
	Total   int64            `json:"total"`
}

// RetryDeletionsRequest 手动重试未完成的级联删除.
type RetryDeletionsRequest struct {
	Limit int `json:"limit" rule:"omitempty,min=1,max=1000"`
}

// RetryDeletionsResponse 重试结果.
type RetryDeletionsResponse struct {
	Completed int `json:"completed"`
}

// ResyncResponse 手动触发重同步的结果.
type ResyncResponse struct {
	Result    string    `json:"result"`
	Requested time.Time `json:"requestedAt"`
}

// ErrorResponse 统一错误响应.
type ErrorResponse struct {
	Error string `json:"error"`
}
