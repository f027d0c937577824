package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/store"
)

// StatusView 面向用户的文档状态.
type StatusView struct {
	OwnerID       string             `json:"ownerId"`
	DocumentID    string             `json:"documentId"`
	DocumentType  model.DocumentType `json:"documentType"`
	FileName      string             `json:"fileName"`
	CurrentStatus model.Status       `json:"currentStatus"`
	Progress      int                `json:"progress"`
	Message       string             `json:"message"`
	SidecarRef    string             `json:"sidecarRef,omitempty"`
	FailureReason string             `json:"failureReason,omitempty"`
	Attempt       int                `json:"attempt"`
	JobID         string             `json:"jobId,omitempty"`
	UpdatedAt     time.Time          `json:"updatedAt"`
	CompletedAt   *time.Time         `json:"completedAt,omitempty"`
}

var progressByStatus = map[model.Status]struct {
	progress int
	message  string
}{
	model.StatusUploaded:         {10, "Upload complete, waiting for processing"},
	model.StatusIngestionStarted: {30, "Processing document"},
	model.StatusIngesting:        {70, "Indexing document"},
	model.StatusReady:            {100, "Ready"},
	model.StatusFailed:           {0, "Processing failed"},
}

// NewStatusView 由记录构造视图.
func NewStatusView(rec *model.DocumentRecord) *StatusView {
	p := progressByStatus[rec.Status]

	return &StatusView{
		OwnerID:       rec.OwnerID,
		DocumentID:    rec.DocumentID,
		DocumentType:  rec.DocumentType,
		FileName:      rec.FileName,
		CurrentStatus: rec.Status,
		Progress:      p.progress,
		Message:       p.message,
		SidecarRef:    rec.SidecarRef,
		FailureReason: rec.FailureReason,
		Attempt:       rec.Attempt,
		JobID:         rec.JobID(),
		UpdatedAt:     rec.UpdatedAt,
		CompletedAt:   rec.CompletedAt,
	}
}

// ListQuery 列表查询参数，状态与分类为空时不过滤.
type ListQuery struct {
	Status string
	Type   string
	Limit  int
	Offset int
}

// ListResult 一页状态视图.
type ListResult struct {
	Items []*StatusView `json:"items"`
	Total int64         `json:"total"`
}

// StatusService 只读查询，直接读元数据库，不缓存.
type StatusService struct {
	docs *store.DocumentStore
}

// NewStatusService 创建查询服务.
func NewStatusService(d Deps) *StatusService {
	return &StatusService{docs: d.Documents}
}

// GetStatus 返回文档当前状态，不存在时返回 store.ErrNotFound.
func (s *StatusService) GetStatus(ctx context.Context, ownerID, documentID string) (*StatusView, error) {
	rec, err := s.docs.Get(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}

	return NewStatusView(rec), nil
}

// List 按状态和分类列出 owner 的文档.
func (s *StatusService) List(ctx context.Context, ownerID string, q ListQuery) (*ListResult, error) {
	f := store.ListFilter{OwnerID: ownerID, Limit: q.Limit, Offset: q.Offset}

	if q.Status != "" {
		st, err := model.ParseStatus(q.Status)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}

		f.Status = st
	}

	if q.Type != "" {
		t := model.NormalizeDocumentType(q.Type)
		if t == model.DocumentTypeOther && !strings.EqualFold(strings.TrimSpace(q.Type), string(model.DocumentTypeOther)) {
			return nil, fmt.Errorf("%w: unknown document type %q", ErrInvalidFilter, q.Type)
		}

		f.Type = t
	}

	if f.Limit < 0 || f.Offset < 0 {
		return nil, fmt.Errorf("%w: negative limit or offset", ErrInvalidFilter)
	}

	if f.Limit > 500 {
		f.Limit = 500
	}

	recs, total, err := s.docs.List(ctx, f)
	if err != nil {
		return nil, err
	}

	out := &ListResult{Items: make([]*StatusView, 0, len(recs)), Total: total}
	for i := range recs {
		out.Items = append(out.Items, NewStatusView(&recs[i]))
	}

	return out, nil
}

// Summary 按状态统计 owner 的文档数，ownerID 为空时统计全部.
func (s *StatusService) Summary(ctx context.Context, ownerID string) (map[model.Status]int64, error) {
	counts, err := s.docs.CountByStatus(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	for _, st := range model.AllStatuses {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}

	return counts, nil
}
