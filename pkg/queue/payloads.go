package queue

import "time"

// EventHeader 所有事件的通用头部.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于转储后定位来源.
	Topic string `json:"topic"`
	// TraceID 关联 ID，来自追踪上下文.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 负载版本.
	Version string `json:"version,omitempty"`
}

// Message 统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// ObjectCreatedPayload 对象创建事件. Key 形如 {ownerId}/{documentId}/{filename}.
type ObjectCreatedPayload struct {
	Bucket       string            `json:"bucket"`
	Key          string            `json:"key"`
	ETag         string            `json:"etag,omitempty"`
	VersionID    string            `json:"version_id,omitempty"`
	Size         int64             `json:"size,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	UserMetadata map[string]string `json:"user_metadata,omitempty"`
}

// Version 返回用于区分对象版本的标识，优先 VersionID.
func (p ObjectCreatedPayload) Version() string {
	if p.VersionID != "" {
		return p.VersionID
	}

	return p.ETag
}

// AnalysisRequestedPayload 内容分析请求.
type AnalysisRequestedPayload struct {
	Bucket       string `json:"bucket"`
	Key          string `json:"key"`
	Version      string `json:"version,omitempty"`
	OwnerID      string `json:"owner_id"`
	DocumentID   string `json:"document_id"`
	DocumentType string `json:"document_type"`
	ModelID      string `json:"model_id,omitempty"`
	Attempt      int    `json:"attempt"`
}

// StatusChangedPayload 文档状态迁移通知.
type StatusChangedPayload struct {
	OwnerID    string `json:"owner_id"`
	DocumentID string `json:"document_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Reason     string `json:"reason,omitempty"`
	Attempt    int    `json:"attempt"`
	JobID      string `json:"job_id,omitempty"`
}
