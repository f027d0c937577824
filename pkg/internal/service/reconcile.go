package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/metrics"
	"github.com/yeisme/docpipe/pkg/tracing"
)

// ReconcileReport 一次对账的统计.
type ReconcileReport struct {
	Scanned   int           `json:"scanned"`
	Advanced  int           `json:"advanced"`
	Ready     int           `json:"ready"`
	Failed    int           `json:"failed"`
	TimedOut  int           `json:"timedOut"`
	Errors    int           `json:"errors"`
	Restarted int           `json:"restarted"`
	Duration  time.Duration `json:"duration"`
}

func (r ReconcileReport) MarshalZerologObject(e *zerolog.Event) {
	e.Int("scanned", r.Scanned).
		Int("advanced", r.Advanced).
		Int("ready", r.Ready).
		Int("failed", r.Failed).
		Int("timed_out", r.TimedOut).
		Int("errors", r.Errors).
		Int("restarted", r.Restarted).
		Dur("duration", r.Duration)
}

type outcome int

const (
	unchanged outcome = iota
	advanced
	becameReady
	becameFailed
	timedOut
	transientError
)

// Reconciler 周期性地把非终态记录与外部作业状态对齐.
type Reconciler struct {
	d       Deps
	tr      *transitioner
	trigger *IngestionTrigger
	logger  zerolog.Logger
}

// NewReconciler 创建对账器. trigger 非空时同时重试停滞在 UPLOADED 的记录.
func NewReconciler(d Deps, trigger *IngestionTrigger) *Reconciler {
	logger := d.Logger.With().Str("component", "reconciler").Logger()

	return &Reconciler{
		d:       d,
		tr:      newTransitioner(d, logger),
		trigger: trigger,
		logger:  logger,
	}
}

// Tick 执行一轮对账. 单个记录的失败互不影响，只计入 Errors；
// 只有列出记录失败时才返回错误.
func (r *Reconciler) Tick(ctx context.Context) (report ReconcileReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "reconciler.tick")
	defer span.End()

	start := time.Now()

	defer func() {
		report.Duration = time.Since(start)
		metrics.ReconcileDuration.Observe(report.Duration.Seconds())
	}()

	recs, err := r.d.Documents.ListReconcilable(ctx, r.batchSize())
	if err != nil {
		tracing.RecordError(span, err)
		return report, err
	}

	report.Scanned = len(recs)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)

	g.SetLimit(max(r.d.Pipeline.ReconcileConcurrency, 1))

	for i := range recs {
		rec := &recs[i]

		g.Go(func() error {
			o := r.reconcileOne(ctx, rec)

			mu.Lock()
			defer mu.Unlock()

			switch o {
			case advanced:
				report.Advanced++
			case becameReady:
				report.Advanced++
				report.Ready++
			case becameFailed:
				report.Advanced++
				report.Failed++
			case timedOut:
				report.Advanced++
				report.Failed++
				report.TimedOut++
			case transientError:
				report.Errors++
			}

			return nil
		})
	}

	_ = g.Wait()

	report.Restarted = r.restartStale(ctx)

	if report.Errors > 0 {
		metrics.ReconcileErrors.Add(float64(report.Errors))
	}

	r.logger.Debug().EmbedObject(report).Msg("reconcile tick")

	return report, nil
}

func (r *Reconciler) batchSize() int {
	if r.d.Pipeline.ReconcileBatchSize > 0 {
		return r.d.Pipeline.ReconcileBatchSize
	}

	return 500
}

// expired 作业存活时间严格超过 MaxJobAge.
func (r *Reconciler) expired(rec *model.DocumentRecord, now time.Time) bool {
	started := rec.UpdatedAt
	if rec.JobStartedAt != nil {
		started = *rec.JobStartedAt
	}

	return r.d.Pipeline.MaxJobAge > 0 && now.Sub(started) > r.d.Pipeline.MaxJobAge
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec *model.DocumentRecord) outcome {
	callCtx, cancel := withTimeout(ctx, r.d.EngineTimeout)
	rep, err := r.d.Engine.GetJobStatus(callCtx, rec.JobID())
	cancel()

	expired := r.expired(rec, r.d.now())
	log := r.logger.With().Str("owner_id", rec.OwnerID).Str("document_id", rec.DocumentID).Str("job_id", rec.JobID()).Logger()

	if err != nil {
		if expired {
			return r.apply(ctx, rec, model.StatusFailed, model.ReasonTimeout, timedOut)
		}

		switch {
		case errors.Is(err, engine.ErrJobNotFound):
			log.Warn().Msg("engine does not know job, waiting for watchdog")
		case engine.IsTransient(err):
			log.Warn().Err(err).Msg("engine unavailable, retry next tick")
		default:
			log.Error().Err(err).Msg("poll job status")
		}

		return transientError
	}

	switch rep.State {
	case engine.JobSucceeded:
		return r.apply(ctx, rec, model.StatusReady, "", becameReady)
	case engine.JobFailed:
		reason := rep.Reason
		if reason == "" {
			reason = model.ReasonEngineFailure
		}

		return r.apply(ctx, rec, model.StatusFailed, reason, becameFailed)
	}

	if expired {
		return r.apply(ctx, rec, model.StatusFailed, model.ReasonTimeout, timedOut)
	}

	if rep.State == engine.JobRunning {
		return r.apply(ctx, rec, model.StatusIngesting, "", advanced)
	}

	return unchanged
}

// apply 推进状态；并发写入导致的冲突视为无变化.
func (r *Reconciler) apply(ctx context.Context, rec *model.DocumentRecord, to model.Status, reason string, onChange outcome) outcome {
	changed, err := r.tr.advance(ctx, rec, to, reason)

	switch {
	case errors.Is(err, store.ErrConflict):
		r.logger.Debug().Str("document_id", rec.DocumentID).Msg("record changed concurrently")
		return unchanged
	case err != nil:
		r.logger.Error().Err(err).Str("document_id", rec.DocumentID).Msg("apply transition")
		return transientError
	case changed:
		return onChange
	default:
		return unchanged
	}
}

// restartStale 重新注册停滞在 UPLOADED 的记录（注册失败后没有重投、或进程在认领后崩溃）.
func (r *Reconciler) restartStale(ctx context.Context) int {
	if r.trigger == nil || r.d.Pipeline.ClaimLease <= 0 {
		return 0
	}

	recs, err := r.d.Documents.ListStaleUploaded(ctx, r.d.now().Add(-r.d.Pipeline.ClaimLease), r.batchSize())
	if err != nil {
		r.logger.Warn().Err(err).Msg("list stale uploaded records")
		return 0
	}

	restarted := 0

	for i := range recs {
		res, err := r.trigger.Restart(ctx, &recs[i])
		if err != nil {
			r.logger.Warn().Err(err).Str("document_id", recs[i].DocumentID).Msg("restart stale record")
			continue
		}

		if res.Outcome == OutcomeStarted {
			restarted++
		}
	}

	return restarted
}
