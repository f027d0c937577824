package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/metrics"
)

// PrometheusMiddleware 记录 HTTP 请求数与耗时.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// 用路由模板做标签，避免文档 id 撑爆基数
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.RequestCounter.WithLabelValues(c.Request.Method, path).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
