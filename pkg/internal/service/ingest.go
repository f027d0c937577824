package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/sidecar"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/metrics"
	"github.com/yeisme/docpipe/pkg/queue"
	"github.com/yeisme/docpipe/pkg/tracing"
)

// TriggerOutcome 一次对象事件的处理结果.
type TriggerOutcome string

const (
	OutcomeStarted   TriggerOutcome = "started"
	OutcomeDuplicate TriggerOutcome = "duplicate"
	OutcomeDiscarded TriggerOutcome = "discarded"
)

// 丢弃原因，同时作为 docpipe_trigger_discarded_total 的标签.
const (
	DiscardMalformedKey = "malformed_key"
	DiscardSidecar      = "sidecar"
	DiscardExtension    = "extension"
	DiscardBucket       = "bucket"
)

// TriggerResult Handle 的返回.
type TriggerResult struct {
	Outcome TriggerOutcome
	Reason  string
	Record  *model.DocumentRecord
}

// IngestionTrigger 处理对象创建事件：建立记录、注册外部摄取作业并请求内容分析.
type IngestionTrigger struct {
	d        Deps
	tr       *transitioner
	sidecars *sidecar.Manager
	logger   zerolog.Logger
}

// NewIngestionTrigger 创建触发器.
func NewIngestionTrigger(d Deps) *IngestionTrigger {
	logger := d.Logger.With().Str("component", "trigger").Logger()

	return &IngestionTrigger{
		d:        d,
		tr:       newTransitioner(d, logger),
		sidecars: d.sidecars(),
		logger:   logger,
	}
}

// documentTypeKeys 用户元数据里携带文档分类的键（小写比较）.
var documentTypeKeys = []string{"x-amz-meta-document-type", "document-type", "document_type", "documenttype"}

func documentTypeFrom(meta map[string]string) model.DocumentType {
	for k, v := range meta {
		if slices.Contains(documentTypeKeys, strings.ToLower(k)) {
			return model.NormalizeDocumentType(v)
		}
	}

	return model.DocumentTypeOther
}

func (t *IngestionTrigger) discard(key, reason string, err error) TriggerResult {
	metrics.TriggerDiscarded.WithLabelValues(reason).Inc()

	ev := t.logger.Info()
	if reason == DiscardMalformedKey {
		ev = t.logger.Error().Err(err)
	}

	ev.Str("key", key).Str("reason", reason).Msg("object event discarded")

	return TriggerResult{Outcome: OutcomeDiscarded, Reason: reason}
}

// admit 判断事件是否应该被处理，返回非空原因表示丢弃.
func (t *IngestionTrigger) admit(ev queue.ObjectCreatedPayload) (ObjectKey, string, error) {
	if sidecar.IsSidecarKey(ev.Key) {
		return ObjectKey{}, DiscardSidecar, nil
	}

	if t.d.Pipeline.Bucket != "" && ev.Bucket != "" && ev.Bucket != t.d.Pipeline.Bucket {
		return ObjectKey{}, DiscardBucket, nil
	}

	ok, err := ParseObjectKey(ev.Key)
	if err != nil {
		return ObjectKey{}, DiscardMalformedKey, err
	}

	if allowed := t.d.Pipeline.AllowedExtensions; len(allowed) > 0 {
		ext := strings.ToLower(path.Ext(ok.FileName))
		if !slices.ContainsFunc(allowed, func(a string) bool { return strings.EqualFold(a, ext) }) {
			return ObjectKey{}, DiscardExtension, nil
		}
	}

	return ok, "", nil
}

// Handle 处理一个对象创建事件.
//
// 返回错误表示应当重投（引擎不可达、数据库错误）；畸形键返回包裹 ErrMalformedKey 的错误，
// 调用方应确认消息而不是重投. 其余被丢弃或重复的事件返回 nil.
func (t *IngestionTrigger) Handle(ctx context.Context, ev queue.ObjectCreatedPayload) (TriggerResult, error) {
	ctx, span := tracing.StartSpan(ctx, "trigger.handle")
	defer span.End()

	key, reason, err := t.admit(ev)
	if reason != "" {
		return t.discard(ev.Key, reason, err), err
	}

	bucket := ev.Bucket
	if bucket == "" {
		bucket = t.d.Pipeline.Bucket
	}

	rec, outcome, err := t.d.Documents.Upsert(ctx, store.UploadInput{
		OwnerID:       key.OwnerID,
		DocumentID:    key.DocumentID,
		DocumentType:  documentTypeFrom(ev.UserMetadata),
		Bucket:        bucket,
		ObjectKey:     ev.Key,
		FileName:      key.FileName,
		ObjectVersion: ev.Version(),
		ContentType:   ev.ContentType,
		Size:          ev.Size,
	})
	if err != nil {
		tracing.RecordError(span, err)
		return TriggerResult{}, fmt.Errorf("upsert record: %w", err)
	}

	if outcome != store.UpsertExisting {
		t.writeMetadata(ctx, rec, ev)
	}

	// 已注册作业、已终态或正被处理的记录：重复通知
	if rec.HasJob() || rec.Status != model.StatusUploaded {
		metrics.TriggerOutcome.WithLabelValues(string(OutcomeDuplicate)).Inc()
		t.logger.Debug().Str("owner_id", rec.OwnerID).Str("document_id", rec.DocumentID).
			Str("status", string(rec.Status)).Msg("duplicate object event")

		return TriggerResult{Outcome: OutcomeDuplicate, Record: rec}, nil
	}

	res, err := t.register(ctx, rec)
	if err != nil {
		tracing.RecordError(span, err)
	}

	return res, err
}

// register 认领当前尝试并启动外部作业. 只有一个并发调用者能拿到认领.
func (t *IngestionTrigger) register(ctx context.Context, rec *model.DocumentRecord) (TriggerResult, error) {
	token := uuid.NewString()

	claimed, err := t.d.Documents.Claim(ctx, rec, token, t.d.Pipeline.ClaimLease)
	if err != nil {
		return TriggerResult{}, err
	}

	if !claimed {
		metrics.TriggerOutcome.WithLabelValues(string(OutcomeDuplicate)).Inc()
		return TriggerResult{Outcome: OutcomeDuplicate, Record: rec}, nil
	}

	callCtx, cancel := withTimeout(ctx, t.d.EngineTimeout)
	jobID, err := t.d.Engine.StartJob(callCtx, rec.Ref())
	cancel()

	if err != nil {
		label, level := "engine_error", zerolog.ErrorLevel
		if engine.IsTransient(err) {
			label, level = "engine_unavailable", zerolog.WarnLevel
		}

		metrics.TriggerOutcome.WithLabelValues(label).Inc()

		if rerr := t.d.Documents.ReleaseClaim(ctx, rec, token); rerr != nil {
			t.logger.Warn().Err(rerr).Str("document_id", rec.DocumentID).Msg("release claim")
		}

		t.logger.WithLevel(level).Err(err).Str("owner_id", rec.OwnerID).Str("document_id", rec.DocumentID).
			Msg("start ingestion job failed, record stays UPLOADED")

		return TriggerResult{}, fmt.Errorf("start ingestion job: %w", err)
	}

	from := rec.Status
	if err := t.d.Documents.MarkStarted(ctx, rec, token, jobID); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// 认领在调用期间过期并被别人接手，本次作业作废
			t.logger.Warn().Str("document_id", rec.DocumentID).Str("job_id", jobID).Msg("claim lost while starting job")
			metrics.TriggerOutcome.WithLabelValues(string(OutcomeDuplicate)).Inc()

			return TriggerResult{Outcome: OutcomeDuplicate, Record: rec}, nil
		}

		return TriggerResult{}, fmt.Errorf("record job id: %w", err)
	}

	metrics.TriggerOutcome.WithLabelValues(string(OutcomeStarted)).Inc()
	t.tr.changed(ctx, rec, from, "")
	t.tagOwner(ctx, rec)
	t.requestAnalysis(ctx, rec)

	return TriggerResult{Outcome: OutcomeStarted, Record: rec}, nil
}

// Reprocess 为终态文档开始新的尝试并立即注册作业.
// 注册失败时记录停留在 UPLOADED，由对账器稍后重试.
func (t *IngestionTrigger) Reprocess(ctx context.Context, ownerID, documentID string) (*model.DocumentRecord, error) {
	rec, err := t.d.Documents.Reset(ctx, ownerID, documentID)
	if errors.Is(err, store.ErrConflict) {
		return nil, ErrNotTerminal
	}

	if err != nil {
		return nil, err
	}

	if t.sidecars != nil {
		if err := t.sidecars.AppendAudit(ctx, rec.Bucket, rec.ObjectKey, "reprocess_requested", ownerID,
			map[string]string{"attempt": fmt.Sprint(rec.Attempt)}); err != nil {
			t.logger.Warn().Err(err).Msg("append audit sidecar")
		}
	}

	res, err := t.register(ctx, rec)
	if err != nil {
		t.logger.Warn().Err(err).Str("document_id", documentID).Msg("reprocess registration deferred")
		return rec, nil
	}

	return res.Record, nil
}

// Restart 对账器对停滞的 UPLOADED 记录重新注册作业.
func (t *IngestionTrigger) Restart(ctx context.Context, rec *model.DocumentRecord) (TriggerResult, error) {
	return t.register(ctx, rec)
}

func (t *IngestionTrigger) writeMetadata(ctx context.Context, rec *model.DocumentRecord, ev queue.ObjectCreatedPayload) {
	if t.sidecars == nil {
		return
	}

	_, err := t.sidecars.Write(ctx, rec.Bucket, rec.ObjectKey, sidecar.KindMetadata, sidecar.Metadata{
		OwnerID:      rec.OwnerID,
		DocumentID:   rec.DocumentID,
		DocumentType: string(rec.DocumentType),
		FileName:     rec.FileName,
		ContentType:  rec.ContentType,
		Size:         rec.Size,
		Version:      rec.ObjectVersion,
		UserMetadata: ev.UserMetadata,
		UploadedAt:   rec.UpdatedAt,
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("key", rec.ObjectKey).Msg("write metadata sidecar")
	}
}

func (t *IngestionTrigger) tagOwner(ctx context.Context, rec *model.DocumentRecord) {
	if t.d.Objects == nil || !t.d.Pipeline.TagOwner {
		return
	}

	if err := t.d.Objects.SetTags(ctx, rec.Bucket, rec.ObjectKey, map[string]string{"owner": rec.OwnerID}); err != nil {
		t.logger.Warn().Err(err).Str("key", rec.ObjectKey).Msg("tag source object")
	}
}

// requestAnalysis 发后即忘，失败只记日志.
func (t *IngestionTrigger) requestAnalysis(ctx context.Context, rec *model.DocumentRecord) {
	if t.d.Publisher == nil || t.d.Events.AnalysisRequestedTopic == "" {
		return
	}

	err := queue.PublishAnalysisRequested(ctx, t.d.Publisher, t.d.Events.AnalysisRequestedTopic, queue.AnalysisRequestedPayload{
		Bucket:       rec.Bucket,
		Key:          rec.ObjectKey,
		Version:      rec.ObjectVersion,
		OwnerID:      rec.OwnerID,
		DocumentID:   rec.DocumentID,
		DocumentType: string(rec.DocumentType),
		ModelID:      t.d.Inferencing.ModelID,
		Attempt:      rec.Attempt,
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("document_id", rec.DocumentID).Msg("publish analysis request")
	}
}
