package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/docpipe/pkg/internal/model"
)

// UpsertOutcome 描述 Upsert 对记录做了什么.
type UpsertOutcome int

const (
	// UpsertCreated 首次看到该文档，新建 UPLOADED 记录.
	UpsertCreated UpsertOutcome = iota
	// UpsertExisting 记录已存在且未开始新尝试（重复通知或注册重试）.
	UpsertExisting
	// UpsertNewAttempt 终态记录收到新版本对象，已重置为新的尝试.
	UpsertNewAttempt
)

func (o UpsertOutcome) String() string {
	switch o {
	case UpsertCreated:
		return "created"
	case UpsertExisting:
		return "existing"
	case UpsertNewAttempt:
		return "new_attempt"
	default:
		return "unknown"
	}
}

// UploadInput 对象创建事件中与记录相关的字段.
type UploadInput struct {
	OwnerID       string
	DocumentID    string
	DocumentType  model.DocumentType
	Bucket        string
	ObjectKey     string
	FileName      string
	ObjectVersion string
	ContentType   string
	Size          int64
}

// ListFilter 列表查询条件，空字段不过滤.
type ListFilter struct {
	OwnerID string
	Status  model.Status
	Type    model.DocumentType
	Limit   int
	Offset  int
}

// DocumentStore DocumentRecord 的持久化.
type DocumentStore struct {
	db  *gorm.DB
	now Clock
}

// NewDocumentStore 创建 DocumentStore.
func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db, now: utcNow}
}

// WithClock 替换时钟（测试使用）.
func (s *DocumentStore) WithClock(c Clock) *DocumentStore {
	s.now = c
	return s
}

func (s *DocumentStore) scoped(ctx context.Context, ownerID, documentID string) *gorm.DB {
	return s.db.WithContext(ctx).Model(&model.DocumentRecord{}).
		Where("owner_id = ? AND document_id = ?", ownerID, documentID)
}

// Get 按主键读取记录.
func (s *DocumentStore) Get(ctx context.Context, ownerID, documentID string) (*model.DocumentRecord, error) {
	var rec model.DocumentRecord

	err := s.db.WithContext(ctx).
		Where("owner_id = ? AND document_id = ?", ownerID, documentID).
		Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", ownerID, documentID, err)
	}

	return &rec, nil
}

// Upsert 按 (owner, document) 插入或复用记录. 终态记录遇到不同的对象版本时开始新尝试；
// 版本为空或相同视为重复通知.
func (s *DocumentStore) Upsert(ctx context.Context, in UploadInput) (*model.DocumentRecord, UpsertOutcome, error) {
	now := s.now()
	rec := &model.DocumentRecord{
		OwnerID:       in.OwnerID,
		DocumentID:    in.DocumentID,
		DocumentType:  in.DocumentType,
		Status:        model.StatusUploaded,
		Attempt:       1,
		Bucket:        in.Bucket,
		ObjectKey:     in.ObjectKey,
		FileName:      in.FileName,
		ObjectVersion: in.ObjectVersion,
		ContentType:   in.ContentType,
		Size:          in.Size,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if res.Error != nil {
		return nil, 0, fmt.Errorf("insert document %s/%s: %w", in.OwnerID, in.DocumentID, res.Error)
	}

	if res.RowsAffected == 1 {
		return rec, UpsertCreated, nil
	}

	existing, err := s.Get(ctx, in.OwnerID, in.DocumentID)
	if err != nil {
		return nil, 0, err
	}

	if !existing.Status.IsTerminal() || in.ObjectVersion == "" || in.ObjectVersion == existing.ObjectVersion {
		return existing, UpsertExisting, nil
	}

	reset, err := s.resetAttempt(ctx, existing, map[string]any{
		"document_type":  in.DocumentType,
		"bucket":         in.Bucket,
		"object_key":     in.ObjectKey,
		"file_name":      in.FileName,
		"object_version": in.ObjectVersion,
		"content_type":   in.ContentType,
		"size":           in.Size,
	})
	if errors.Is(err, ErrConflict) {
		// 并发的另一条通知已经重置
		existing, err = s.Get(ctx, in.OwnerID, in.DocumentID)
		if err != nil {
			return nil, 0, err
		}

		return existing, UpsertExisting, nil
	}

	if err != nil {
		return nil, 0, err
	}

	return reset, UpsertNewAttempt, nil
}

// resetAttempt 把终态记录重置为新尝试的 UPLOADED，条件是状态与尝试代数未变.
func (s *DocumentStore) resetAttempt(ctx context.Context, rec *model.DocumentRecord, extra map[string]any) (*model.DocumentRecord, error) {
	updates := map[string]any{
		"status":          model.StatusUploaded,
		"attempt":         gorm.Expr("attempt + 1"),
		"external_job_id": nil,
		"job_started_at":  nil,
		"completed_at":    nil,
		"failure_reason":  "",
		"sidecar_ref":     "",
		"claim_token":     "",
		"claimed_at":      nil,
		"updated_at":      s.now(),
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.scoped(ctx, rec.OwnerID, rec.DocumentID).
		Where("status = ? AND attempt = ?", rec.Status, rec.Attempt).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("reset document %s/%s: %w", rec.OwnerID, rec.DocumentID, res.Error)
	}

	if res.RowsAffected == 0 {
		return nil, ErrConflict
	}

	return s.Get(ctx, rec.OwnerID, rec.DocumentID)
}

// Reset 显式重新处理：终态记录开始新尝试. 非终态返回 ErrConflict.
func (s *DocumentStore) Reset(ctx context.Context, ownerID, documentID string) (*model.DocumentRecord, error) {
	rec, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}

	if !rec.Status.IsTerminal() {
		return nil, ErrConflict
	}

	return s.resetAttempt(ctx, rec, nil)
}

// Claim 为当前尝试抢占任务注册权. 只有 UPLOADED 且无任务 id、
// 并且没有未过期租约的记录才能被认领.
func (s *DocumentStore) Claim(ctx context.Context, rec *model.DocumentRecord, token string, lease time.Duration) (bool, error) {
	now := s.now()

	res := s.scoped(ctx, rec.OwnerID, rec.DocumentID).
		Where("attempt = ? AND status = ? AND external_job_id IS NULL", rec.Attempt, model.StatusUploaded).
		Where("(claim_token = '' OR claimed_at IS NULL OR claimed_at < ?)", now.Add(-lease)).
		Updates(map[string]any{
			"claim_token": token,
			"claimed_at":  now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim document %s/%s: %w", rec.OwnerID, rec.DocumentID, res.Error)
	}

	return res.RowsAffected == 1, nil
}

// ReleaseClaim 释放自己持有的租约，注册失败后允许重试.
func (s *DocumentStore) ReleaseClaim(ctx context.Context, rec *model.DocumentRecord, token string) error {
	err := s.scoped(ctx, rec.OwnerID, rec.DocumentID).
		Where("claim_token = ?", token).
		Updates(map[string]any{
			"claim_token": "",
			"claimed_at":  nil,
		}).Error
	if err != nil {
		return fmt.Errorf("release claim %s/%s: %w", rec.OwnerID, rec.DocumentID, err)
	}

	return nil
}

// MarkStarted 记录外部任务 id 并进入 INGESTION_STARTED. 条件：仍为 UPLOADED、
// 没有任务 id 且租约属于 token.
func (s *DocumentStore) MarkStarted(ctx context.Context, rec *model.DocumentRecord, token, jobID string) error {
	now := s.now()

	res := s.scoped(ctx, rec.OwnerID, rec.DocumentID).
		Where("attempt = ? AND status = ? AND external_job_id IS NULL AND claim_token = ?",
			rec.Attempt, model.StatusUploaded, token).
		Updates(map[string]any{
			"status":          model.StatusIngestionStarted,
			"external_job_id": jobID,
			"job_started_at":  now,
			"claim_token":     "",
			"claimed_at":      nil,
			"updated_at":      now,
		})
	if res.Error != nil {
		return fmt.Errorf("mark started %s/%s: %w", rec.OwnerID, rec.DocumentID, res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrConflict
	}

	rec.Status = model.StatusIngestionStarted
	rec.ExternalJobID = &jobID
	rec.JobStartedAt = &now
	rec.ClaimToken = ""
	rec.ClaimedAt = nil
	rec.UpdatedAt = now

	return nil
}

// Transition 把记录从 rec.Status 迁移到 to. 条件包含当前状态、任务 id 与尝试代数，
// 目标与当前相同时不写库并返回 false（重复应用同一状态是无操作）. 迁移成功时同步更新 rec.
func (s *DocumentStore) Transition(ctx context.Context, rec *model.DocumentRecord, to model.Status, reason string) (bool, error) {
	if rec.Status == to {
		return false, nil
	}

	if !model.CanTransition(rec.Status, to) {
		return false, fmt.Errorf("illegal transition %s -> %s for %s/%s", rec.Status, to, rec.OwnerID, rec.DocumentID)
	}

	now := s.now()
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}

	if to.IsTerminal() {
		updates["completed_at"] = now
	}

	if to == model.StatusFailed {
		reason = model.TruncateReason(reason)
		updates["failure_reason"] = reason
	}

	res := s.scoped(ctx, rec.OwnerID, rec.DocumentID).
		Where("status = ? AND attempt = ? AND external_job_id = ?", rec.Status, rec.Attempt, rec.JobID()).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("transition %s/%s to %s: %w", rec.OwnerID, rec.DocumentID, to, res.Error)
	}

	if res.RowsAffected == 0 {
		return false, ErrConflict
	}

	rec.Status = to
	rec.UpdatedAt = now

	if to.IsTerminal() {
		rec.CompletedAt = &now
	}

	if to == model.StatusFailed {
		rec.FailureReason = reason
	}

	return true, nil
}

// SetSidecarRef 只更新 sidecar_ref 与 updated_at，不触碰状态列.
func (s *DocumentStore) SetSidecarRef(ctx context.Context, ownerID, documentID, ref string) error {
	res := s.scoped(ctx, ownerID, documentID).
		Updates(map[string]any{
			"sidecar_ref": ref,
			"updated_at":  s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("set sidecar ref %s/%s: %w", ownerID, documentID, res.Error)
	}

	if res.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// ListReconcilable 返回已注册任务且未到终态的记录，最早开始的排在前面.
func (s *DocumentStore) ListReconcilable(ctx context.Context, limit int) ([]model.DocumentRecord, error) {
	var recs []model.DocumentRecord

	err := s.db.WithContext(ctx).
		Where("status IN ? AND external_job_id IS NOT NULL",
			[]model.Status{model.StatusIngestionStarted, model.StatusIngesting}).
		Order("job_started_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list reconcilable: %w", err)
	}

	return recs, nil
}

// ListStaleUploaded 返回 before 之前最后更新、仍未注册任务的 UPLOADED 记录.
func (s *DocumentStore) ListStaleUploaded(ctx context.Context, before time.Time, limit int) ([]model.DocumentRecord, error) {
	var recs []model.DocumentRecord

	err := s.db.WithContext(ctx).
		Where("status = ? AND external_job_id IS NULL AND updated_at < ?", model.StatusUploaded, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list stale uploaded: %w", err)
	}

	return recs, nil
}

// List 按 owner、状态、分类过滤，返回当前页与总数.
func (s *DocumentStore) List(ctx context.Context, f ListFilter) ([]model.DocumentRecord, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.DocumentRecord{})

	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}

	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	if f.Type != "" {
		q = q.Where("document_type = ?", f.Type)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	var recs []model.DocumentRecord

	err := q.Order("created_at DESC").Limit(limit).Offset(f.Offset).Find(&recs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}

	return recs, total, nil
}

// CountByStatus 按状态统计，ownerID 为空时统计全部.
func (s *DocumentStore) CountByStatus(ctx context.Context, ownerID string) (map[model.Status]int64, error) {
	var rows []struct {
		Status model.Status
		N      int64
	}

	q := s.db.WithContext(ctx).Model(&model.DocumentRecord{}).Select("status, COUNT(*) AS n")
	if ownerID != "" {
		q = q.Where("owner_id = ?", ownerID)
	}

	if err := q.Group("status").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}

	out := make(map[model.Status]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}

	return out, nil
}

// Delete 删除 owner 下的一个文档，documentID 为空时删除 owner 的全部记录.
func (s *DocumentStore) Delete(ctx context.Context, ownerID, documentID string) (int64, error) {
	q := s.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if documentID != "" {
		q = q.Where("document_id = ?", documentID)
	}

	res := q.Delete(&model.DocumentRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete documents of %s: %w", ownerID, res.Error)
	}

	return res.RowsAffected, nil
}
