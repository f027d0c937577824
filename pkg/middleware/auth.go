package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/configs"
)

const ownerKey = "owner_id"

// AuthMiddleware 信任上游代理（如 oauth2-proxy）写入的身份头，解析出 owner 标识.
// 跳过路径与未开启校验时不要求身份头.
func AuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	headers := conf.OwnerHeaders
	if len(headers) == 0 {
		headers = []string{"X-Auth-Request-User", "X-Forwarded-User", "X-Owner-Id"}
	}

	return func(c *gin.Context) {
		owner := ""

		for _, h := range headers {
			if owner = strings.TrimSpace(c.GetHeader(h)); owner != "" {
				break
			}
		}

		if owner == "" && conf.DevAllowQuery {
			owner = strings.TrimSpace(c.Query("owner"))
		}

		if owner != "" {
			c.Set(ownerKey, owner)
			c.Next()

			return
		}

		if !conf.Enabled || isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// OwnerID 返回当前请求的 owner 标识，未认证时为空.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerKey)
}

func isSkippedPath(path string, skips []string) bool {
	for _, p := range skips {
		if p = strings.TrimSpace(p); p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}
