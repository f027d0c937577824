// NATS 工厂：JetStream 持久化消费，队列组负载均衡，
// 认证支持 JWT、NKey、用户名/密码.
package mq

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/docpipe/pkg/configs"
)

const (
	DefaultDrainTimeout   = 30 * time.Second
	DefaultFlusherTimeout = 10 * time.Second
	DefaultCloseTimeout   = 30 * time.Second
)

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// buildNatsOptions 构建 NATS 连接选项.
func buildNatsOptions(cfg configs.MQConfig) []nc.Option {
	opts := []nc.Option{
		nc.Name(cfg.Common.ClientID),
		nc.MaxReconnects(cfg.Common.MaxReconnects),
		nc.ReconnectWait(time.Duration(cfg.Common.ReconnectWait) * time.Second),
		nc.PingInterval(time.Duration(cfg.Common.PingInterval) * time.Second),
		nc.ReconnectBufSize(cfg.Common.BufferSize),
		nc.DrainTimeout(DefaultDrainTimeout),
		nc.FlusherTimeout(DefaultFlusherTimeout),
		nc.RetryOnFailedConnect(true),
	}

	return appendAuthOptions(opts, cfg)
}

// appendAuthOptions 添加认证选项.
func appendAuthOptions(opts []nc.Option, cfg configs.MQConfig) []nc.Option {
	switch {
	case cfg.NATS.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(cfg.NATS.JWT, cfg.NATS.NKey))
	case cfg.NATS.NKey != "":
		opts = append(opts, nc.Nkey(cfg.NATS.NKey, nil))
	case cfg.Common.User != "":
		opts = append(opts, nc.UserInfo(cfg.Common.User, cfg.Common.Password))
	}

	return opts
}

// buildJetStreamConfig 构建 JetStream 配置. 最大投递次数与确认超时由配置控制，
// 超过次数的消息不再重投.
func buildJetStreamConfig(cfg configs.MQConfig, logger watermill.LoggerAdapter) nats.JetStreamConfig {
	n := cfg.NATS

	jsCfg := nats.JetStreamConfig{
		Disabled: !n.JetStreamEnabled,
	}

	if !n.JetStreamEnabled {
		return jsCfg
	}

	jsCfg.AutoProvision = n.JetStreamAutoProvision
	jsCfg.TrackMsgId = n.JetStreamTrackMsgID
	jsCfg.AckAsync = n.JetStreamAckAsync
	jsCfg.DurablePrefix = n.JetStreamDurablePrefix
	jsCfg.SubscribeOptions = []nc.SubOpt{
		nc.DeliverAll(),
		nc.AckExplicit(),
		nc.MaxDeliver(n.ConsumerMaxDeliver),
		nc.AckWait(time.Duration(n.ConsumerAckWait) * time.Second),
	}

	logger.Info("jetstream configured", watermill.LogFields{
		"auto_provision": n.JetStreamAutoProvision,
		"track_msg_id":   n.JetStreamTrackMsgID,
		"durable_prefix": n.JetStreamDurablePrefix,
		"max_deliver":    n.ConsumerMaxDeliver,
	})

	return jsCfg
}

// buildURL 构建连接 URL.
func buildURL(cfg configs.MQConfig) string {
	if len(cfg.NATS.ClusterURLs) > 0 {
		return strings.Join(cfg.NATS.ClusterURLs, ",")
	}

	return cfg.Common.URL
}

// natsFactory 创建 NATS Publisher & Subscriber.
func natsFactory(
	_ context.Context,
	cfg configs.MQConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	opts := buildNatsOptions(cfg)
	jsCfg := buildJetStreamConfig(cfg, logger)
	marshaler := &nats.JSONMarshaler{}

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         buildURL(cfg),
		NatsOptions: opts,
		JetStream:   jsCfg,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              buildURL(cfg),
		QueueGroupPrefix: cfg.NATS.QueueGroupPrefix,
		SubscribersCount: cfg.NATS.SubscribersCount,
		CloseTimeout:     DefaultCloseTimeout,
		AckWaitTimeout:   time.Duration(cfg.NATS.ConsumerAckWait) * time.Second,
		NatsOptions:      opts,
		JetStream:        jsCfg,
		Unmarshaler:      marshaler,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}

	return pub, sub, nil
}
