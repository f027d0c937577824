// Package app 组装并运行服务进程：HTTP 接口、总线消费者与周期任务.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/docpipe/pkg/api"
	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/handle"
	"github.com/yeisme/docpipe/pkg/internal/jobs"
	"github.com/yeisme/docpipe/pkg/internal/mq"
	"github.com/yeisme/docpipe/pkg/internal/storage"
	"github.com/yeisme/docpipe/pkg/log"
	"github.com/yeisme/docpipe/pkg/metrics"
	"github.com/yeisme/docpipe/pkg/middleware"
	"github.com/yeisme/docpipe/pkg/scheduler"
	"github.com/yeisme/docpipe/pkg/tracing"
)

type App struct {
	Engine *gin.Engine

	config    *configs.AppConfig
	pipeline  *Pipeline
	consumers *message.Router
	sched     *scheduler.Scheduler
	logger    zerolog.Logger
}

// NewApp 初始化追踪、指标与存储，注册消费者、周期任务和 HTTP 路由.
func NewApp(cfg *configs.AppConfig) (*App, error) {
	ctx := context.Background()

	if err := tracing.InitTracer(cfg.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	p, err := NewPipeline(ctx, cfg, storage.Options{})
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, pipeline: p, logger: log.Component("app")}

	a.consumers, err = mq.NewRouter(p.Storage.MQ, cfg.Events, mq.NewConsumers(p.Trigger, p.Analyzer, *log.Logger()))
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	if a.sched, err = scheduler.NewScheduler(*log.Logger()); err != nil {
		_ = p.Close()
		return nil, err
	}

	err = jobs.RegisterJobs(a.sched, cfg.Pipeline, jobs.Runners{
		Reconciler: p.Reconciler,
		Resyncer:   p.Resyncer,
		Deletions:  p.Deletions,
	}, *log.Logger())
	if err != nil {
		_ = p.Close()
		return nil, err
	}

	a.Engine = a.newEngine()

	configs.OnLogConfigChange(func(l configs.LogConfig) {
		log.SetLevel(l.Level)
		a.logger.Info().Str("level", l.Level).Msg("log level reloaded")
	})

	return a, nil
}

func (a *App) newEngine() *gin.Engine {
	if !a.config.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	engine := gin.New()
	engine.Use(middleware.Chain(a.config)...)
	engine.Use(middleware.Dependencies(a.pipeline.Storage, a.sched))

	if a.config.Metrics.Enabled {
		_ = metrics.StartMetricsServer(a.config.Metrics, engine)
	}

	api.RegisterGroup(engine, handle.NewHandlers(handle.Services{
		Status:     a.pipeline.Status,
		Trigger:    a.pipeline.Trigger,
		Deletions:  a.pipeline.Deletions,
		Reconciler: a.pipeline.Reconciler,
		Resyncer:   a.pipeline.Resyncer,
	}))

	return engine
}

// Run 运行到 ctx 取消或任一部分失败，然后依次关闭 HTTP、消费者、调度器与存储.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.config.Server.Addr(),
		Handler:           a.Engine,
		ReadHeaderTimeout: a.config.Server.ReadTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("addr", srv.Addr).Msg("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		if err := a.consumers.Run(gctx); err != nil {
			return fmt.Errorf("consumers: %w", err)
		}

		return nil
	})

	a.sched.Start()

	g.Go(func() error {
		<-gctx.Done()

		return a.shutdown(srv)
	})

	return g.Wait()
}

func (a *App) shutdown(srv *http.Server) error {
	a.logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.ShutdownTimeout)
	defer cancel()

	errs := []error{
		srv.Shutdown(ctx),
		a.consumers.Close(),
		a.sched.Shutdown(),
		a.pipeline.Close(),
		tracing.ShutdownTracer(ctx),
	}

	return errors.Join(errs...)
}
