// Package middleware 提供 HTTP 中间件：身份、角色、限流、熔断、追踪、指标与请求日志.
package middleware

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/configs"
)

// Chain 按配置返回 API 使用的中间件链，顺序即执行顺序.
func Chain(cfg *configs.AppConfig) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		gin.Recovery(),
		CORSMiddleware(cfg.Server, cfg.Auth),
		gzip.Gzip(gzip.DefaultCompression),
		Tracing(),
		PrometheusMiddleware(),
		AccessLog(),
		AuthMiddleware(cfg.Auth),
		RoleMiddleware(),
		RateLimitMiddleware(cfg.RateLimit),
		CircuitBreakerMiddleware(cfg.CircuitBreaker),
	}
}
