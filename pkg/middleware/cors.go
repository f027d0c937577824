package middleware

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/configs"
)

// CORSMiddleware 允许浏览器端携带身份头与角色头调用文档接口.
func CORSMiddleware(server configs.ServerConfig, auth configs.AuthConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	config.AddAllowHeaders("X-Role")
	config.AddAllowHeaders(auth.OwnerHeaders...)
	config.AddExposeHeaders("Retry-After")

	if server.Debug {
		config.MaxAge = 0
	}

	return cors.New(config)
}
