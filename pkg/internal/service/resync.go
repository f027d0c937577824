package service

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/metrics"
	"github.com/yeisme/docpipe/pkg/tracing"
)

// ResyncLeaseKey 重同步租约在 KV 中的键.
const ResyncLeaseKey = "lease.resync"

// ResyncResult 一次重同步的结果.
type ResyncResult string

const (
	ResyncStarted        ResyncResult = "started"
	ResyncAlreadyRunning ResyncResult = "already_running"
	ResyncSkipped        ResyncResult = "skipped"
	ResyncFailed         ResyncResult = "failed"
)

// Resyncer 请求外部引擎对整个语料做一次重同步，不触碰文档记录.
type Resyncer struct {
	d      Deps
	holder string
	logger zerolog.Logger
}

// NewResyncer 创建重同步任务.
func NewResyncer(d Deps) *Resyncer {
	holder, _ := os.Hostname()
	if holder == "" {
		holder = "docpipe"
	}

	return &Resyncer{
		d:      d,
		holder: holder,
		logger: d.Logger.With().Str("component", "resync").Logger(),
	}
}

// Run 执行一次重同步. 引擎报告已有重同步在运行时视为成功；
// 另一个副本持有租约时跳过.
func (r *Resyncer) Run(ctx context.Context) (ResyncResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resync.run")
	defer span.End()

	res, err := r.run(ctx)
	metrics.ResyncRuns.WithLabelValues(string(res)).Inc()

	if err != nil {
		tracing.RecordError(span, err)
		r.logger.Error().Err(err).Msg("corpus resync failed")
	} else {
		r.logger.Info().Str("result", string(res)).Msg("corpus resync")
	}

	return res, err
}

func (r *Resyncer) run(ctx context.Context) (ResyncResult, error) {
	if r.d.KV != nil && r.d.Pipeline.ResyncLease > 0 {
		ok, err := r.d.KV.SetNX(ctx, ResyncLeaseKey, []byte(r.holder), r.d.Pipeline.ResyncLease)
		if err != nil {
			return ResyncFailed, fmt.Errorf("acquire resync lease: %w", err)
		}

		if !ok {
			return ResyncSkipped, nil
		}
	}

	callCtx, cancel := withTimeout(ctx, r.d.EngineTimeout)
	err := r.d.Engine.StartResync(callCtx)
	cancel()

	switch {
	case err == nil:
		return ResyncStarted, nil
	case errors.Is(err, engine.ErrAlreadyRunning):
		return ResyncAlreadyRunning, nil
	default:
		// 失败时释放租约，允许手动或下一次调度重试
		if r.d.KV != nil {
			if derr := r.d.KV.Delete(ctx, ResyncLeaseKey); derr != nil {
				r.logger.Warn().Err(derr).Msg("release resync lease")
			}
		}

		return ResyncFailed, fmt.Errorf("start resync: %w", err)
	}
}
