// Package engine 定义外部摄取引擎的窄契约，以及基于 HTTP 作业 API 的客户端实现.
//
// 引擎本身是黑盒：提交一个对象得到作业 id，之后按 id 轮询状态；
// 另有针对整个数据源的重同步请求.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yeisme/docpipe/pkg/internal/model"
)

var (
	// ErrUnavailable 引擎不可达、超时或 5xx，可重试.
	ErrUnavailable = errors.New("engine: unavailable")
	// ErrJobNotFound 引擎不认识该作业 id.
	ErrJobNotFound = errors.New("engine: job not found")
	// ErrAlreadyRunning 已有重同步在运行.
	ErrAlreadyRunning = errors.New("engine: resync already running")
)

// JobState 外部作业状态.
type JobState string

const (
	JobPending   JobState = "PENDING"
	JobRunning   JobState = "RUNNING"
	JobSucceeded JobState = "SUCCEEDED"
	JobFailed    JobState = "FAILED"
)

// NormalizeJobState 把引擎方言映射到四种状态，无法识别的视为 PENDING.
func NormalizeJobState(v string) JobState {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "RUNNING", "IN_PROGRESS", "INDEXING":
		return JobRunning
	case "SUCCEEDED", "COMPLETE", "COMPLETED", "SUCCESS":
		return JobSucceeded
	case "FAILED", "FAILURE", "STOPPED", "ERROR":
		return JobFailed
	default:
		return JobPending
	}
}

// JobReport GetJobStatus 的结果.
type JobReport struct {
	JobID  string
	State  JobState
	Reason string
}

// IngestionEngine 外部摄取引擎.
type IngestionEngine interface {
	// StartJob 针对单个对象启动摄取作业，返回作业 id.
	StartJob(ctx context.Context, ref model.ObjectRef) (string, error)
	// GetJobStatus 查询作业状态.
	GetJobStatus(ctx context.Context, jobID string) (JobReport, error)
	// StartResync 对整个语料发起重同步.
	StartResync(ctx context.Context) error
}

// StatusError 引擎返回的非 2xx 响应.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine %s: http %d: %s", e.Op, e.StatusCode, e.Body)
}

// Temporary 5xx 与 429 视为瞬时错误.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// Unwrap 瞬时错误归入 ErrUnavailable.
func (e *StatusError) Unwrap() error {
	if e.Temporary() {
		return ErrUnavailable
	}

	return nil
}
