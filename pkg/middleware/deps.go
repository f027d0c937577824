package middleware

import (
	stdctx "context"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/context"
	"github.com/yeisme/docpipe/pkg/internal/storage"
	"github.com/yeisme/docpipe/pkg/scheduler"
)

type schedulerKey struct{}

// Dependencies 把存储管理器和调度器挂到请求上下文，运维接口（健康检查、调度管理）从中读取.
// 任一参数为 nil 时对应的接口返回 503.
func Dependencies(manager *storage.Manager, sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if manager != nil {
			ctx = context.WithStorageManager(ctx, manager)
		}

		if sched != nil {
			ctx = stdctx.WithValue(ctx, schedulerKey{}, sched)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetScheduler 未注入时返回 nil.
func GetScheduler(c *gin.Context) *scheduler.Scheduler {
	sched, _ := c.Request.Context().Value(schedulerKey{}).(*scheduler.Scheduler)
	return sched
}
