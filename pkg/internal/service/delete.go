package service

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid"
	"github.com/rs/zerolog"

	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/sidecar"
	"github.com/yeisme/docpipe/pkg/metrics"
	"github.com/yeisme/docpipe/pkg/tracing"
)

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(crand.Reader, 0)
)

func newDeletionID(t time.Time) string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(t), ulidEntropy).String()
}

// ResourceReport 单个资源类别的删除结果.
type ResourceReport struct {
	Status model.StepStatus `json:"status"`
	Count  int              `json:"count"`
	Error  string           `json:"error,omitempty"`
}

// DeletionReport 级联删除报告.
type DeletionReport struct {
	DeletionID string                            `json:"deletionId"`
	OwnerID    string                            `json:"ownerId"`
	DocumentID string                            `json:"documentId,omitempty"`
	Status     model.DeletionStatus              `json:"status"`
	Attempts   int                               `json:"attempts"`
	Resources  map[model.Resource]ResourceReport `json:"resources"`
}

// NewDeletionReport 由任务构造报告.
func NewDeletionReport(job *model.DeletionJob) *DeletionReport {
	rep := &DeletionReport{
		DeletionID: job.ID,
		OwnerID:    job.OwnerID,
		DocumentID: job.DocumentID,
		Status:     job.Status,
		Attempts:   job.Attempts,
		Resources:  make(map[model.Resource]ResourceReport, len(job.Steps)),
	}

	for _, st := range job.Steps {
		rep.Resources[st.Resource] = ResourceReport{Status: st.Status, Count: st.Count, Error: st.Error}
	}

	return rep
}

// DeletionService 按 sidecars -> objects -> records 顺序级联删除.
// 每一步的结果都持久化，已成功的步骤在重试时跳过. 已派发的外部任务不会被取消.
type DeletionService struct {
	d      Deps
	logger zerolog.Logger
}

// NewDeletionService 创建删除服务.
func NewDeletionService(d Deps) *DeletionService {
	return &DeletionService{
		d:      d,
		logger: d.Logger.With().Str("component", "deletion").Logger(),
	}
}

// DeleteDocument 删除单个文档及其对象与 sidecar. 记录不存在时返回 store.ErrNotFound.
func (s *DeletionService) DeleteDocument(ctx context.Context, ownerID, documentID string) (*DeletionReport, error) {
	if _, err := s.d.Documents.Get(ctx, ownerID, documentID); err != nil {
		return nil, err
	}

	return s.start(ctx, ownerID, documentID)
}

// DeleteOwner 删除 owner 的全部文档.
func (s *DeletionService) DeleteOwner(ctx context.Context, ownerID string) (*DeletionReport, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}

	return s.start(ctx, ownerID, "")
}

// Get 返回删除任务报告.
func (s *DeletionService) Get(ctx context.Context, deletionID string) (*DeletionReport, error) {
	job, err := s.d.Deletions.Get(ctx, deletionID)
	if err != nil {
		return nil, err
	}

	return NewDeletionReport(job), nil
}

// RetryPending 重跑未完成的删除任务，返回本次完成的任务数.
func (s *DeletionService) RetryPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	jobs, err := s.d.Deletions.ListUnfinished(ctx, limit)
	if err != nil {
		return 0, err
	}

	completed := 0

	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return completed, err
		}

		if err := s.run(ctx, &jobs[i]); err != nil {
			s.logger.Error().Err(err).Str("deletion_id", jobs[i].ID).Msg("retry deletion")
			continue
		}

		if jobs[i].Status == model.DeletionCompleted {
			completed++
		}
	}

	return completed, nil
}

func (s *DeletionService) start(ctx context.Context, ownerID, documentID string) (*DeletionReport, error) {
	job := &model.DeletionJob{
		ID:         newDeletionID(s.d.now()),
		OwnerID:    ownerID,
		DocumentID: documentID,
		Status:     model.DeletionPending,
	}

	for _, r := range model.DeletionResources {
		job.Steps = append(job.Steps, model.DeletionStep{JobID: job.ID, Resource: r, Status: model.StepPending})
	}

	if err := s.d.Deletions.Create(ctx, job); err != nil {
		return nil, err
	}

	if err := s.run(ctx, job); err != nil {
		return nil, err
	}

	return NewDeletionReport(job), nil
}

// run 执行尚未成功的步骤并写回任务状态. 单步失败不中断后续步骤.
func (s *DeletionService) run(ctx context.Context, job *model.DeletionJob) error {
	ctx, span := tracing.StartSpan(ctx, "deletion.run")
	defer span.End()

	job.Attempts++
	allDone := true

	for _, r := range model.DeletionResources {
		step := job.Step(r)
		if step == nil || step.Status == model.StepSucceeded {
			continue
		}

		count, err := s.runStep(ctx, job, r)

		step.Count = count
		if err != nil {
			step.Status = model.StepFailed
			step.Error = err.Error()
			allDone = false

			s.logger.Warn().Err(err).
				Str("deletion_id", job.ID).
				Str("resource", string(r)).
				Msg("deletion step failed")
		} else {
			step.Status = model.StepSucceeded
			step.Error = ""
		}

		metrics.DeletionSteps.WithLabelValues(string(r), string(step.Status)).Inc()

		if err := s.d.Deletions.SaveStep(ctx, step); err != nil {
			tracing.RecordError(span, err)
			return err
		}
	}

	if allDone {
		job.Status = model.DeletionCompleted
	} else {
		job.Status = model.DeletionPartial
	}

	if err := s.d.Deletions.SaveStatus(ctx, job); err != nil {
		tracing.RecordError(span, err)
		return err
	}

	s.logger.Info().
		Str("deletion_id", job.ID).
		Str("owner_id", job.OwnerID).
		Str("document_id", job.DocumentID).
		Str("status", string(job.Status)).
		Int("attempts", job.Attempts).
		Msg("cascade deletion")

	return nil
}

func (s *DeletionService) runStep(ctx context.Context, job *model.DeletionJob, r model.Resource) (int, error) {
	switch r {
	case model.ResourceSidecars:
		return s.removeObjects(ctx, job, true)
	case model.ResourceObjects:
		return s.removeObjects(ctx, job, false)
	case model.ResourceRecords:
		n, err := s.d.Documents.Delete(ctx, job.OwnerID, job.DocumentID)
		return int(n), err
	default:
		return 0, fmt.Errorf("unknown resource %q", r)
	}
}

// removeObjects 删除前缀下的 sidecar（sidecars=true）或源对象.
func (s *DeletionService) removeObjects(ctx context.Context, job *model.DeletionJob, sidecars bool) (int, error) {
	if s.d.Objects == nil {
		return 0, errors.New("object store not configured")
	}

	bucket := s.d.Pipeline.Bucket
	if bucket == "" {
		return 0, errors.New("pipeline bucket not configured")
	}

	keys, err := s.d.Objects.List(ctx, bucket, job.Prefix())
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", job.Prefix(), err)
	}

	selected := keys[:0]
	for _, k := range keys {
		if sidecar.IsSidecarKey(k) == sidecars {
			selected = append(selected, k)
		}
	}

	if len(selected) == 0 {
		return 0, nil
	}

	n, err := s.d.Objects.Remove(ctx, bucket, selected)
	if err != nil {
		return n, fmt.Errorf("remove objects under %s: %w", job.Prefix(), err)
	}

	return n, nil
}
