package handle

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/internal/types"
)

const defaultRetryLimit = 100

// DeleteOwner DELETE /admin/owners/:owner，删除一个 owner 的全部数据.
func (h *Handlers) DeleteOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := checkParam(c, "owner")
		if !ok {
			return
		}

		report, err := h.svc.Deletions.DeleteOwner(c.Request.Context(), owner)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(deletionCode(report), report)
	}
}

// RetryDeletions POST /admin/deletions/retry.
func (h *Handlers) RetryDeletions() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.RetryDeletionsRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "invalid request body"})
				return
			}
		}

		if req.Limit == 0 {
			req.Limit = defaultRetryLimit
		}

		n, err := h.svc.Deletions.RetryPending(c.Request.Context(), req.Limit)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, types.RetryDeletionsResponse{Completed: n})
	}
}

// Reconcile POST /admin/reconcile，立即执行一次对账.
func (h *Handlers) Reconcile() gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := h.svc.Reconciler.Tick(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// Resync POST /admin/resync，请求一次语料重同步.
func (h *Handlers) Resync() gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.svc.Resyncer.Run(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, types.ResyncResponse{Result: string(res), Requested: time.Now().UTC()})
	}
}
