package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/service"
	"github.com/yeisme/docpipe/pkg/internal/types"
	"github.com/yeisme/docpipe/pkg/rule"
)

// GetStatus GET /documents/:id/status.
func (h *Handlers) GetStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := checkOwner(c)
		if !ok {
			return
		}

		doc, ok := checkParam(c, "id")
		if !ok {
			return
		}

		view, err := h.svc.Status.GetStatus(c.Request.Context(), owner, doc)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, view)
	}
}

// List GET /documents?status=&type=&limit=&offset=.
func (h *Handlers) List() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := checkOwner(c)
		if !ok {
			return
		}

		var q types.ListDocumentsQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query", "fields": rule.Errors(err)})
			return
		}

		res, err := h.svc.Status.List(c.Request.Context(), owner, service.ListQuery{
			Status: q.Status,
			Type:   q.Type,
			Limit:  q.Limit,
			Offset: q.Offset,
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusOK, res)
	}
}

// Summary GET /documents/summary.
func (h *Handlers) Summary() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := checkOwner(c)
		if !ok {
			return
		}

		counts, err := h.svc.Status.Summary(c.Request.Context(), owner)
		if err != nil {
			writeError(c, err)
			return
		}

		resp := types.SummaryResponse{OwnerID: owner, Counts: make(map[string]int64, len(counts))}
		for s, n := range counts {
			resp.Counts[string(s)] = n
			resp.Total += n
		}

		c.JSON(http.StatusOK, resp)
	}
}

// Reprocess POST /documents/:id/reprocess，只接受终态文档.
func (h *Handlers) Reprocess() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := checkOwner(c)
		if !ok {
			return
		}

		doc, ok := checkParam(c, "id")
		if !ok {
			return
		}

		rec, err := h.svc.Trigger.Reprocess(c.Request.Context(), owner, doc)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, service.NewStatusView(rec))
	}
}

// Delete DELETE /documents/:id，返回级联删除报告.
func (h *Handlers) Delete() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := checkOwner(c)
		if !ok {
			return
		}

		doc, ok := checkParam(c, "id")
		if !ok {
			return
		}

		report, err := h.svc.Deletions.DeleteDocument(c.Request.Context(), owner, doc)
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(deletionCode(report), report)
	}
}

// Deletion GET /deletions/:id，只能查看自己发起的删除.
func (h *Handlers) Deletion() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, ok := checkOwner(c)
		if !ok {
			return
		}

		id, ok := checkParam(c, "id")
		if !ok {
			return
		}

		report, err := h.svc.Deletions.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}

		if report.OwnerID != owner {
			c.JSON(http.StatusNotFound, types.ErrorResponse{Error: "deletion not found"})
			return
		}

		c.JSON(http.StatusOK, report)
	}
}

// deletionCode 未全部完成的删除返回 202，后台任务会继续重试.
func deletionCode(r *service.DeletionReport) int {
	if r.Status == model.DeletionCompleted {
		return http.StatusOK
	}

	return http.StatusAccepted
}
