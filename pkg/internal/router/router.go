// Package router 管理路由配置，把路径绑定到由 handle 包注入的处理器.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/middleware"
)

// DocumentHandlers 文档状态、重新处理与删除接口.
type DocumentHandlers interface {
	GetStatus() gin.HandlerFunc
	List() gin.HandlerFunc
	Summary() gin.HandlerFunc
	Reprocess() gin.HandlerFunc
	Delete() gin.HandlerFunc
	Deletion() gin.HandlerFunc
}

// AdminHandlers 运维接口.
type AdminHandlers interface {
	DeleteOwner() gin.HandlerFunc
	RetryDeletions() gin.HandlerFunc
	Reconcile() gin.HandlerFunc
	Resync() gin.HandlerFunc
}

// RegisterDocumentRoutes 绑定文档接口:
//
//	GET    /documents               -> List
//	GET    /documents/summary       -> Summary
//	GET    /documents/:id/status    -> GetStatus
//	POST   /documents/:id/reprocess -> Reprocess
//	DELETE /documents/:id           -> Delete
//	GET    /deletions/:id           -> Deletion
func RegisterDocumentRoutes(g *gin.RouterGroup, h DocumentHandlers) {
	docs := g.Group("/documents")
	{
		docs.GET("", h.List())
		docs.GET("/summary", h.Summary())
		docs.GET("/:id/status", h.GetStatus())
		docs.POST("/:id/reprocess", h.Reprocess())
		docs.DELETE("/:id", h.Delete())
	}

	g.GET("/deletions/:id", h.Deletion())
}

// RegisterAdminRoutes 绑定运维接口，删除 owner 需要 admin，其余需要 operator.
func RegisterAdminRoutes(g *gin.RouterGroup, h AdminHandlers) {
	admin := g.Group("/admin", middleware.RequireMinRole(middleware.RoleOperator))
	{
		admin.POST("/reconcile", h.Reconcile())
		admin.POST("/resync", h.Resync())
		admin.POST("/deletions/retry", h.RetryDeletions())
		admin.DELETE("/owners/:owner", middleware.RequireMinRole(middleware.RoleAdmin), h.DeleteOwner())
	}
}
