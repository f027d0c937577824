package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/internal/handle"
	"github.com/yeisme/docpipe/pkg/middleware"
)

// RegisterOpsRoutes 注册运维路由.
// /health/* 默认在 auth.skip_paths 中，/scheduler/* 需要 operator.
func RegisterOpsRoutes(g *gin.RouterGroup) {
	probes := g.Group("/health")
	for dep, h := range map[string]gin.HandlerFunc{
		"db": handle.HealthDB,
		"s3": handle.HealthS3,
		"mq": handle.HealthMQ,
		"kv": handle.HealthKV,
	} {
		probes.GET("/"+dep, h)
	}

	jobs := g.Group("/scheduler/jobs", middleware.RequireMinRole(middleware.RoleOperator))
	jobs.GET("", handle.SchedulerJobs)
	jobs.POST("/:name/run", handle.SchedulerRunJob)
	jobs.POST("/stop", handle.SchedulerStopJobs)
	jobs.DELETE("/:id", handle.SchedulerRemoveJob)

	g.GET("/scheduler/queue/waiting",
		middleware.RequireMinRole(middleware.RoleOperator), handle.SchedulerQueueWaiting)
}
