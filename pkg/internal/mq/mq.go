// Package mq 把总线上的流水线事件接到服务层：对象创建事件交给摄取触发器，
// 分析请求交给内容分析器.
//
// 处理函数返回错误即 nack，由总线重投；畸形对象键与无法解码的消息直接确认，
// 避免毒消息反复投递.
//
// 使用示例：
//
//	router, err := mq.NewRouter(client, cfg.Events, mq.NewConsumers(trigger, analyzer, logger))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	go router.Run(ctx)
package mq

import (
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/service"
	storagemq "github.com/yeisme/docpipe/pkg/internal/storage/mq"
	"github.com/yeisme/docpipe/pkg/queue"
)

// Handler 名称.
const (
	HandlerObjectCreated     = "docpipe.ingestion_trigger"
	HandlerAnalysisRequested = "docpipe.content_analyzer"
)

// Consumers 流水线消费者.
type Consumers struct {
	trigger  *service.IngestionTrigger
	analyzer *service.Analyzer
	logger   zerolog.Logger
}

// NewConsumers 创建消费者，analyzer 为 nil 时不订阅分析请求.
func NewConsumers(trigger *service.IngestionTrigger, analyzer *service.Analyzer, logger zerolog.Logger) *Consumers {
	return &Consumers{
		trigger:  trigger,
		analyzer: analyzer,
		logger:   logger.With().Str("component", "consumer").Logger(),
	}
}

// NewRouter 创建 watermill router 并注册处理函数. 调用方负责 Run 与 Close.
func NewRouter(client *storagemq.Client, events configs.EventsConfig, c *Consumers) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 15 * time.Second}, client.Logger())
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Retry{
			MaxRetries:      2,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2,
			Logger:          client.Logger(),
		}.Middleware,
	)

	router.AddNoPublisherHandler(
		HandlerObjectCreated,
		client.Topic(events.ObjectCreatedTopic),
		client.Subscriber(),
		c.HandleObjectCreated,
	)

	if c.analyzer != nil {
		router.AddNoPublisherHandler(
			HandlerAnalysisRequested,
			client.Topic(events.AnalysisRequestedTopic),
			client.Subscriber(),
			c.HandleAnalysisRequested,
		)
	}

	client.InstrumentRouter(router)

	return router, nil
}

// HandleObjectCreated 处理对象创建事件. 一条 MinIO 通知可能携带多条记录，
// 任一记录需要重投时整条消息重投（已处理的记录重投后是重复，无副作用）.
func (c *Consumers) HandleObjectCreated(msg *message.Message) error {
	events, err := queue.ParseObjectCreated(msg)
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("undecodable object event, dropping")
		return nil
	}

	for _, ev := range events {
		res, err := c.trigger.Handle(msg.Context(), ev)

		switch {
		case errors.Is(err, service.ErrMalformedKey):
			continue
		case err != nil:
			return err
		}

		c.logger.Debug().
			Str("key", ev.Key).
			Str("outcome", string(res.Outcome)).
			Str("reason", res.Reason).
			Msg("object event handled")
	}

	return nil
}

// HandleAnalysisRequested 处理分析请求. 分析失败只记录日志，消息总是确认.
func (c *Consumers) HandleAnalysisRequested(msg *message.Message) error {
	m, err := queue.ParseAnalysisRequested(msg)
	if err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.UUID).Msg("undecodable analysis request, dropping")
		return nil
	}

	_ = c.analyzer.Analyze(msg.Context(), service.AnalysisRequestFrom(m.Payload))

	return nil
}
