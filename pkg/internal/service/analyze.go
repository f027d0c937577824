package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/sidecar"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/metrics"
	"github.com/yeisme/docpipe/pkg/queue"
	"github.com/yeisme/docpipe/pkg/tracing"
)

// AnalysisRequest 一次内容分析请求. Attempt 为 0 时不校验尝试代数.
type AnalysisRequest struct {
	Ref     model.ObjectRef
	ModelID string
	Attempt int
}

// AnalysisRequestFrom 从消息负载构造请求.
func AnalysisRequestFrom(p queue.AnalysisRequestedPayload) AnalysisRequest {
	return AnalysisRequest{
		Ref: model.ObjectRef{
			Bucket:     p.Bucket,
			Key:        p.Key,
			Version:    p.Version,
			OwnerID:    p.OwnerID,
			DocumentID: p.DocumentID,
			Type:       model.NormalizeDocumentType(p.DocumentType),
		},
		ModelID: p.ModelID,
		Attempt: p.Attempt,
	}
}

// Analyzer 内容分析旁路：推理、写 .extracted.json、回填 sidecar_ref.
// 它只写 sidecar_ref 与 updated_at，从不改变文档状态.
type Analyzer struct {
	d        Deps
	sidecars *sidecar.Manager
	logger   zerolog.Logger
}

// NewAnalyzer 创建分析器.
func NewAnalyzer(d Deps) *Analyzer {
	return &Analyzer{
		d:        d,
		sidecars: d.sidecars(),
		logger:   d.Logger.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze 执行一次分析. 返回的错误仅用于记录，调用方不应据此重投或改变文档状态.
func (a *Analyzer) Analyze(ctx context.Context, req AnalysisRequest) error {
	ctx, span := tracing.StartSpan(ctx, "analyzer.analyze")
	defer span.End()

	err := a.analyze(ctx, req)
	if err != nil {
		tracing.RecordError(span, err)
		a.logger.Error().Err(err).
			Str("owner_id", req.Ref.OwnerID).
			Str("document_id", req.Ref.DocumentID).
			Msg("content analysis failed")
	}

	return err
}

func (a *Analyzer) analyze(ctx context.Context, req AnalysisRequest) error {
	if a.d.Inference == nil || !a.d.Inferencing.Enabled {
		metrics.AnalysisOutcome.WithLabelValues("skipped").Inc()
		return nil
	}

	if a.sidecars == nil {
		return errors.New("object store not configured")
	}

	ref := req.Ref

	if a.stale(ctx, req) {
		metrics.AnalysisOutcome.WithLabelValues("skipped").Inc()
		return nil
	}

	a.appendProcessing(ctx, ref, "ai_analysis_started", "starting content extraction", "")

	callCtx, cancel := withTimeout(ctx, a.d.Inferencing.Timeout)
	ins, err := a.d.Inference.Infer(callCtx, ref, req.ModelID)
	cancel()

	if err != nil {
		metrics.AnalysisOutcome.WithLabelValues("failed").Inc()
		a.appendProcessing(ctx, ref, "ai_analysis_failed", "content extraction failed", err.Error())

		return fmt.Errorf("infer: %w", err)
	}

	key, err := a.sidecars.Write(ctx, ref.Bucket, ref.Key, sidecar.KindExtracted, sidecar.Extracted{
		DocumentID:          ref.DocumentID,
		DocumentType:        string(ref.Type),
		ExtractionTimestamp: a.d.now(),
		ModelID:             ins.ModelID,
		Confidence:          ins.Confidence,
		Data:                ins.Data,
	})
	if err != nil {
		metrics.AnalysisOutcome.WithLabelValues("failed").Inc()
		return fmt.Errorf("write extracted sidecar: %w", err)
	}

	if err := a.d.Documents.SetSidecarRef(ctx, ref.OwnerID, ref.DocumentID, key); err != nil {
		metrics.AnalysisOutcome.WithLabelValues("failed").Inc()

		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("document deleted during analysis: %w", err)
		}

		return err
	}

	metrics.AnalysisOutcome.WithLabelValues("ok").Inc()
	a.appendProcessing(ctx, ref, "ai_analysis_complete", fmt.Sprintf("extraction complete, confidence: %.2f", ins.Confidence), "")

	if err := a.sidecars.AppendAudit(ctx, ref.Bucket, ref.Key, "ai_extraction_complete", "system", map[string]string{
		"confidence":   fmt.Sprintf("%.2f", ins.Confidence),
		"documentType": string(ref.Type),
	}); err != nil {
		a.logger.Warn().Err(err).Str("key", ref.Key).Msg("append audit sidecar")
	}

	return nil
}

// stale 请求属于已被新尝试取代的旧尝试.
func (a *Analyzer) stale(ctx context.Context, req AnalysisRequest) bool {
	if req.Attempt == 0 {
		return false
	}

	rec, err := a.d.Documents.Get(ctx, req.Ref.OwnerID, req.Ref.DocumentID)
	if err != nil {
		return false
	}

	return rec.Attempt > req.Attempt
}

func (a *Analyzer) appendProcessing(ctx context.Context, ref model.ObjectRef, status, details, errMsg string) {
	if !a.d.Pipeline.WriteProcessingSidecar {
		return
	}

	if err := a.sidecars.AppendProcessing(ctx, ref.Bucket, ref.Key, status, details, errMsg); err != nil {
		a.logger.Warn().Err(err).Str("key", ref.Key).Msg("append processing sidecar")
	}
}
