// Package mq 基于 Watermill 提供统一的消息总线客户端.
// 不同后端（NATS JetStream、进程内 gochannel）通过工厂注册，
// 上层只依赖 message.Publisher / message.Subscriber.
//
// 使用示例：
//
//	client, err := mq.New(ctx, cfg.MQ, true)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Publish(ctx, "dp.object.created", msg)
package mq

import (
	"context"
	"fmt"
	"sort"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/docpipe/pkg/configs"
	nlog "github.com/yeisme/docpipe/pkg/log"
	pmetrics "github.com/yeisme/docpipe/pkg/metrics"
)

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var factories = map[configs.MQType]Factory{}

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factories[t] = f
}

// RegisteredTypes 返回已注册的 MQ 类型.
func RegisteredTypes() []configs.MQType {
	types := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Client 封装 watermill Publisher 与 Subscriber.
type Client struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
	metrics    *metrics.PrometheusMetricsBuilder
	mqType     configs.MQType
	prefix     string
}

// New 按配置创建消息总线客户端，withMetrics 时发布/订阅都挂上 Prometheus 指标.
func New(ctx context.Context, cfg configs.MQConfig, withMetrics bool) (*Client, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	logger := NewLoggerAdapter(nlog.Component("mq"))

	pub, sub, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	client := &Client{publisher: pub, subscriber: sub, logger: logger, mqType: cfg.Type}
	if cfg.Type == configs.MQTypeNATS {
		client.prefix = cfg.NATS.SubjectPrefix
	}

	if withMetrics && cfg.Common.EnableMetrics {
		builder := metrics.NewPrometheusMetricsBuilder(pmetrics.GetRegistry(), "docpipe", "mq")

		if client.publisher, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if client.subscriber, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}

		client.metrics = &builder
	}

	nlog.Logger().Info().Str("type", string(cfg.Type)).Msg("mq client initialized")

	return client, nil
}

// NewWithPubSub 用现成的 Publisher/Subscriber 构造客户端（进程内总线与测试使用）.
func NewWithPubSub(pub message.Publisher, sub message.Subscriber) *Client {
	return &Client{
		publisher:  pub,
		subscriber: sub,
		logger:     NewLoggerAdapter(nlog.Component("mq")),
		mqType:     configs.MQTypeMemory,
	}
}

// Topic 返回加上主题前缀后的实际主题名.
func (c *Client) Topic(topic string) string {
	if c.prefix == "" {
		return topic
	}

	return c.prefix + "." + topic
}

// Publish 发布消息到主题.
func (c *Client) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return fmt.Errorf("mq publisher not initialized")
	}

	return c.publisher.Publish(c.Topic(topic), msgs...)
}

// Subscribe 订阅主题.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, fmt.Errorf("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, c.Topic(topic))
}

// Publisher 返回底层 Publisher.
func (c *Client) Publisher() message.Publisher { return c.publisher }

// Subscriber 返回底层 Subscriber.
func (c *Client) Subscriber() message.Subscriber { return c.subscriber }

// Logger 返回 watermill 日志适配器.
func (c *Client) Logger() watermill.LoggerAdapter { return c.logger }

// Type 返回后端类型.
func (c *Client) Type() configs.MQType { return c.mqType }

// InstrumentRouter 为消费者 router 注册处理耗时等指标（未启用指标时不做任何事）.
func (c *Client) InstrumentRouter(r *message.Router) {
	if c.metrics != nil {
		c.metrics.AddPrometheusRouterMetrics(r)
	}
}

// Close 关闭资源.
func (c *Client) Close() error {
	var err error

	if c.publisher != nil {
		if e := c.publisher.Close(); e != nil {
			err = e
		}
	}

	if c.subscriber != nil {
		if e := c.subscriber.Close(); e != nil {
			err = e
		}
	}

	return err
}
