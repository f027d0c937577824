// Package context 在请求上下文中传递存储管理器，并把追踪信息带进日志.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/docpipe/pkg/internal/storage"
	dbc "github.com/yeisme/docpipe/pkg/internal/storage/db"
	kvc "github.com/yeisme/docpipe/pkg/internal/storage/kv"
	mqc "github.com/yeisme/docpipe/pkg/internal/storage/mq"
	s3c "github.com/yeisme/docpipe/pkg/internal/storage/s3"
)

type managerKey struct{}

// WithStorageManager 将 Manager 存入 ctx.
func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, mgr)
}

// GetManager 取出 Manager，不存在时为 nil.
func GetManager(ctx context.Context) *storage.Manager {
	mgr, _ := ctx.Value(managerKey{}).(*storage.Manager)
	return mgr
}

// GetS3Client 对象存储客户端，CLI 子命令可能没有初始化.
func GetS3Client(ctx context.Context) *s3c.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.S3
	}

	return nil
}

// GetDBClient 元数据库客户端.
func GetDBClient(ctx context.Context) *dbc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.DB
	}

	return nil
}

// GetMQClient 消息总线客户端.
func GetMQClient(ctx context.Context) *mqc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.MQ
	}

	return nil
}

// GetKVClient 租约与缓存使用的 KV 客户端.
func GetKVClient(ctx context.Context) *kvc.Client {
	if mgr := GetManager(ctx); mgr != nil {
		return mgr.KV
	}

	return nil
}

// WithTraceContext 有可用 span 时给 logger 加上 trace_id 与 span_id.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}

	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}
