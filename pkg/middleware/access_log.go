package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	ctxPkg "github.com/yeisme/docpipe/pkg/context"
	"github.com/yeisme/docpipe/pkg/log"
)

// AccessLog 每个请求一行结构化日志. 健康探针降到 debug，5xx 为 error，4xx 为 warn.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		logger := ctxPkg.WithTraceContext(c.Request.Context(), log.Component("http"))

		var ev *zerolog.Event

		switch {
		case status >= 500:
			ev = logger.Error()
		case status >= 400:
			ev = logger.Warn()
		case strings.Contains(route, "/health/"):
			ev = logger.Debug()
		default:
			ev = logger.Info()
		}

		ev = ev.
			Str("method", c.Request.Method).
			Str("route", route).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP())

		if owner := OwnerID(c); owner != "" {
			ev = ev.Str("owner_id", owner)
		}

		if len(c.Errors) > 0 {
			ev = ev.Str("error", c.Errors.String())
		}

		ev.Msg("request")
	}
}
