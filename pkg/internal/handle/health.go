package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/docpipe/pkg/context"
)

const healthTimeout = 2 * time.Second

func unhealthy(c *gin.Context, component, msg string) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"component": component, "status": "unhealthy", "error": msg})
}

// HealthDB 元数据库健康检查.
func HealthDB(c *gin.Context) {
	dbc := ctxPkg.GetDBClient(c.Request.Context())
	if dbc == nil || dbc.DB == nil {
		unhealthy(c, "db", "db client not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	sqlDB, err := dbc.DB.DB()
	if err != nil {
		unhealthy(c, "db", err.Error())
		return
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		unhealthy(c, "db", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "db", "status": "ok"})
}

// HealthS3 对象存储健康检查，检查源桶是否可访问.
func HealthS3(c *gin.Context) {
	s3c := ctxPkg.GetS3Client(c.Request.Context())
	if s3c == nil || s3c.Client == nil {
		unhealthy(c, "s3", "s3 client not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := s3c.HealthCheck(ctx); err != nil {
		unhealthy(c, "s3", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "s3", "status": "ok"})
}

// HealthMQ 消息总线健康检查.
func HealthMQ(c *gin.Context) {
	mqc := ctxPkg.GetMQClient(c.Request.Context())
	if mqc == nil {
		unhealthy(c, "mq", "mq client not initialized")
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "mq", "status": "ok", "type": mqc.Type()})
}

// HealthKV 租约存储健康检查.
func HealthKV(c *gin.Context) {
	kvc := ctxPkg.GetKVClient(c.Request.Context())
	if kvc == nil || kvc.KVStore == nil {
		unhealthy(c, "kv", "kv client not initialized")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if _, err := kvc.Exists(ctx, "health.probe"); err != nil {
		unhealthy(c, "kv", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": "kv", "status": "ok"})
}
