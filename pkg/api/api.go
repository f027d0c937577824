// Package api 汇总对外 HTTP 接口，把路由组挂到 gin 引擎上.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/internal/handle"
	"github.com/yeisme/docpipe/pkg/internal/router"
)

// Prefix API 版本前缀.
const Prefix = "/api/v1"

// RegisterGroup 在 e 上注册文档、运维、调度与健康检查路由.
func RegisterGroup(e *gin.Engine, h *handle.Handlers) *gin.Engine {
	v1 := e.Group(Prefix)

	router.RegisterDocumentRoutes(v1, h)
	router.RegisterAdminRoutes(v1, h)
	router.RegisterOpsRoutes(v1)

	return e
}
