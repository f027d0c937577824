// Package jobs 注册流水线的周期任务：状态对账、语料重同步与级联删除重试.
package jobs

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/service"
	"github.com/yeisme/docpipe/pkg/scheduler"
)

// Runners 周期任务依赖的组件.
type Runners struct {
	Reconciler *service.Reconciler
	Resyncer   *service.Resyncer
	Deletions  *service.DeletionService
}

// RegisterJobs 按流水线配置注册任务:
//   - 每 reconcile_interval 执行一次对账
//   - resync_cron 请求一次语料重同步，多副本之间由租约去重
//   - deletion_retry_cron 重跑未完成的级联删除
func RegisterJobs(sched *scheduler.Scheduler, cfg configs.PipelineConfig, r Runners, logger zerolog.Logger) error {
	if sched == nil {
		return errors.New("scheduler is nil")
	}

	l := logger.With().Str("component", "jobs").Logger()

	if r.Reconciler != nil {
		if err := sched.AddInterval(JobReconcile, cfg.ReconcileInterval, func(ctx context.Context) error {
			report, err := r.Reconciler.Tick(ctx)
			l.Debug().Str("job", JobReconcile).EmbedObject(report).Msg("tick")

			return err
		}); err != nil {
			return err
		}
	}

	if r.Resyncer != nil {
		if err := sched.AddCron(JobResync, cfg.ResyncCron, func(ctx context.Context) error {
			res, err := r.Resyncer.Run(ctx)
			l.Info().Str("job", JobResync).Str("result", string(res)).Msg("resync")

			return err
		}); err != nil {
			return err
		}
	}

	if r.Deletions != nil {
		if err := sched.AddCron(JobDeletionsRetry, cfg.DeletionRetryCron, func(ctx context.Context) error {
			n, err := r.Deletions.RetryPending(ctx, DeletionRetryBatch)
			if n > 0 {
				l.Info().Str("job", JobDeletionsRetry).Int("completed", n).Msg("deletions retried")
			}

			return err
		}); err != nil {
			return err
		}
	}

	return nil
}
