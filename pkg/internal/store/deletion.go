package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yeisme/docpipe/pkg/internal/model"
)

// DeletionStore 级联删除任务的持久化.
type DeletionStore struct {
	db  *gorm.DB
	now Clock
}

// NewDeletionStore 创建 DeletionStore.
func NewDeletionStore(db *gorm.DB) *DeletionStore {
	return &DeletionStore{db: db, now: utcNow}
}

// Create 保存任务及其全部步骤.
func (s *DeletionStore) Create(ctx context.Context, job *model.DeletionJob) error {
	now := s.now()
	job.CreatedAt = now
	job.UpdatedAt = now

	for i := range job.Steps {
		job.Steps[i].UpdatedAt = now
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create deletion job: %w", err)
	}

	return nil
}

// Get 读取任务及步骤.
func (s *DeletionStore) Get(ctx context.Context, id string) (*model.DeletionJob, error) {
	var job model.DeletionJob

	err := s.db.WithContext(ctx).Preload("Steps").Where("id = ?", id).Take(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get deletion job %s: %w", id, err)
	}

	return &job, nil
}

// SaveStep 写回单个步骤的结果.
func (s *DeletionStore) SaveStep(ctx context.Context, step *model.DeletionStep) error {
	step.UpdatedAt = s.now()

	err := s.db.WithContext(ctx).Model(&model.DeletionStep{}).
		Where("id = ?", step.ID).
		Updates(map[string]any{
			"status":     step.Status,
			"count":      step.Count,
			"error":      step.Error,
			"updated_at": step.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("save deletion step %s/%s: %w", step.JobID, step.Resource, err)
	}

	return nil
}

// SaveStatus 写回任务状态并累加尝试次数.
func (s *DeletionStore) SaveStatus(ctx context.Context, job *model.DeletionJob) error {
	job.UpdatedAt = s.now()

	err := s.db.WithContext(ctx).Model(&model.DeletionJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]any{
			"status":     job.Status,
			"attempts":   job.Attempts,
			"updated_at": job.UpdatedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("save deletion job %s: %w", job.ID, err)
	}

	return nil
}

// ListUnfinished 返回未完成的任务（PENDING 或 PARTIAL），最早创建的在前.
func (s *DeletionStore) ListUnfinished(ctx context.Context, limit int) ([]model.DeletionJob, error) {
	var jobs []model.DeletionJob

	err := s.db.WithContext(ctx).Preload("Steps").
		Where("status IN ?", []model.DeletionStatus{model.DeletionPending, model.DeletionPartial}).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list unfinished deletions: %w", err)
	}

	return jobs, nil
}
