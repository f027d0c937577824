package app

import (
	"context"
	"fmt"

	"github.com/yeisme/docpipe/pkg/cache"
	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/inference"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/service"
	"github.com/yeisme/docpipe/pkg/internal/storage"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/log"
)

// inferenceCachePrefix 推理结果在 KV 中的键前缀.
const inferenceCachePrefix = "docpipe"

// Pipeline 按配置组装好的流水线组件，serve 与 CLI 子命令共用.
type Pipeline struct {
	Storage    *storage.Manager
	Deps       service.Deps
	Trigger    *service.IngestionTrigger
	Reconciler *service.Reconciler
	Analyzer   *service.Analyzer
	Resyncer   *service.Resyncer
	Status     *service.StatusService
	Deletions  *service.DeletionService
}

// NewPipeline 初始化存储并构建组件. opts 决定打开哪些外部资源，
// 缺少的资源对应的尽力而为步骤会被跳过.
func NewPipeline(ctx context.Context, cfg *configs.AppConfig, opts storage.Options) (*Pipeline, error) {
	mgr, err := storage.Init(ctx, cfg, opts)
	if err != nil {
		return nil, err
	}

	if cfg.DB.AutoMigrate {
		if err := mgr.DB.Migrate(model.Models()...); err != nil {
			_ = mgr.Close()
			return nil, err
		}
	}

	d := service.Deps{
		Documents:     store.NewDocumentStore(mgr.DB.GetDB()),
		Deletions:     store.NewDeletionStore(mgr.DB.GetDB()),
		Engine:        engine.NewClient(cfg.Engine, log.Component("engine")),
		Pipeline:      cfg.Pipeline,
		Events:        cfg.Events,
		EngineTimeout: cfg.Engine.Timeout,
		Inferencing:   cfg.Inference,
		Logger:        log.Component("pipeline"),
	}

	// nil 指针不能直接赋给接口，否则接口不为 nil
	if mgr.S3 != nil {
		d.Objects = mgr.S3
	}

	if mgr.MQ != nil {
		d.Publisher = mgr.MQ
	}

	if mgr.KV != nil {
		d.KV = mgr.KV
	}

	if cfg.Inference.Enabled && mgr.S3 != nil {
		infer, err := newInference(cfg.Inference, mgr)
		if err != nil {
			_ = mgr.Close()
			return nil, err
		}

		d.Inference = infer
	}

	trigger := service.NewIngestionTrigger(d)

	return &Pipeline{
		Storage:    mgr,
		Deps:       d,
		Trigger:    trigger,
		Reconciler: service.NewReconciler(d, trigger),
		Analyzer:   service.NewAnalyzer(d),
		Resyncer:   service.NewResyncer(d),
		Status:     service.NewStatusService(d),
		Deletions:  service.NewDeletionService(d),
	}, nil
}

func newInference(cfg configs.InferenceConfig, mgr *storage.Manager) (inference.InferenceEngine, error) {
	llm, err := inference.NewOpenAIModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("init inference: %w", err)
	}

	var c *cache.Cache
	if mgr.KV != nil && cfg.CacheTTL > 0 {
		c = cache.NewCache(mgr.KV, inferenceCachePrefix)
	}

	return inference.NewLLMEngine(llm, mgr.S3, cfg, c, log.Component("inference")), nil
}

// Close 释放存储资源.
func (p *Pipeline) Close() error {
	return p.Storage.Close()
}
