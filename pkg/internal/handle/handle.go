// Package handle 提供 HTTP 请求处理器，把请求转换为流水线服务调用.
package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/docpipe/pkg/context"
	"github.com/yeisme/docpipe/pkg/internal/service"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/internal/types"
	"github.com/yeisme/docpipe/pkg/log"
	"github.com/yeisme/docpipe/pkg/middleware"
	"github.com/yeisme/docpipe/pkg/rule"
)

// Services 处理器依赖的流水线服务.
type Services struct {
	Status     *service.StatusService
	Trigger    *service.IngestionTrigger
	Deletions  *service.DeletionService
	Reconciler *service.Reconciler
	Resyncer   *service.Resyncer
}

// Handlers 文档接口与管理接口的处理器集合.
type Handlers struct {
	svc Services
}

// NewHandlers 创建处理器集合.
func NewHandlers(s Services) *Handlers {
	return &Handlers{svc: s}
}

// DefaultHandler 未实现的接口.
func DefaultHandler(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, types.ErrorResponse{Error: "not implemented"})
}

// checkOwner 读取身份中间件解析出的 owner 并校验格式.
func checkOwner(c *gin.Context) (string, bool) {
	owner := middleware.OwnerID(c)
	if err := rule.ValidateVar(owner, rule.TagIdentifier); err != nil {
		c.JSON(http.StatusUnauthorized, types.ErrorResponse{Error: "missing or invalid owner identity"})
		return "", false
	}

	return owner, true
}

// checkParam 校验路径参数.
func checkParam(c *gin.Context, name string) (string, bool) {
	v := c.Param(name)
	if err := rule.ValidateVar(v, rule.TagIdentifier); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid " + name})
		return "", false
	}

	return v, true
}

// writeError 把服务层错误映射为 HTTP 状态码，只有 5xx 记错误日志.
func writeError(c *gin.Context, err error) {
	code := http.StatusInternalServerError

	switch {
	case errors.Is(err, store.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrNotTerminal), errors.Is(err, store.ErrConflict):
		code = http.StatusConflict
	case errors.Is(err, service.ErrInvalidFilter):
		code = http.StatusBadRequest
	}

	if code >= http.StatusInternalServerError {
		l := ctxPkg.WithTraceContext(c.Request.Context(), log.Component("http"))
		l.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	c.JSON(code, types.ErrorResponse{Error: err.Error()})
}
