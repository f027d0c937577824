// Package queue 定义流水线在消息总线上交换的事件：主题、负载与统一信封.
//
// 信封 JSON 结构
//
//	{
//	  "header": {
//	    "topic": "dp.object.created",
//	    "trace_id": "optional-trace-id",
//	    "producer": "docpipe",
//	    "occurred_at": "2026-01-02T03:04:05.123456Z",
//	    "version": "v1"
//	  },
//	  "payload": { ... 取决于具体主题 ... }
//	}
//
// dp.object.created 同时接受 MinIO 桶通知的原始格式（{"EventName": ..., "Records": [...]})，
// 由 ParseObjectCreated 统一转换为 ObjectCreatedPayload.
//
// 发布示例
//
//	msg, _ := queue.NewWatermillMessage(queue.TopicStatusChanged, payload,
//	  queue.WithTraceID(traceID),
//	  queue.WithProducer("docpipe"),
//	)
//	_ = client.Publish(ctx, queue.TopicStatusChanged, msg)
//
// 编解码使用 bytedance/sonic.
package queue

import (
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
)

const (
	PayloadVersionV1 string = "v1"
	// Producer 本服务的生产者名.
	Producer = "docpipe"
)

// 元数据键.
const (
	MetaTopic      = "topic"
	MetaTraceID    = "trace_id"
	MetaProducer   = "producer"
	MetaOccurredAt = "occurred_at"
	MetaVersion    = "version"
)

// Option 修改事件头或消息 ID.
type Option func(*envelopeOptions)

type envelopeOptions struct {
	header EventHeader
	msgID  string
}

// NewEventHeader 便捷创建事件头.
func NewEventHeader(topic string, opts ...Option) EventHeader {
	return applyOptions(topic, opts).header
}

func applyOptions(topic string, opts []Option) envelopeOptions {
	o := envelopeOptions{
		header: EventHeader{
			Topic:      topic,
			OccurredAt: time.Now().UTC(),
			Version:    PayloadVersionV1,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

// WithTraceID 设置 TraceID.
func WithTraceID(id string) Option { return func(o *envelopeOptions) { o.header.TraceID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) Option { return func(o *envelopeOptions) { o.header.Producer = p } }

// WithOccurredAt 覆盖事件时间.
func WithOccurredAt(t time.Time) Option {
	return func(o *envelopeOptions) { o.header.OccurredAt = t.UTC() }
}

// WithMessageID 使用给定的消息 ID（去重场景），默认随机 UUID.
func WithMessageID(id string) Option { return func(o *envelopeOptions) { o.msgID = id } }

// Encode 将消息封装为 JSON 字节切片.
func Encode[T any](msg Message[T]) ([]byte, error) { return sonic.Marshal(msg) }

// Decode 从 JSON 字节解码为消息.
func Decode[T any](b []byte) (Message[T], error) {
	var m Message[T]

	err := sonic.Unmarshal(b, &m)

	return m, err
}

// NewWatermillMessage 构造一个 watermill 消息，设置 ID 与元数据.
func NewWatermillMessage[T any](topic string, payload T, opts ...Option) (*message.Message, error) {
	o := applyOptions(topic, opts)
	env := Message[T]{Header: o.header, Payload: payload}

	data, err := Encode(env)
	if err != nil {
		return nil, err
	}

	id := o.msgID
	if id == "" {
		id = watermill.NewUUID()
	}

	msg := message.NewMessage(id, data)
	msg.Metadata.Set(MetaTopic, topic)

	if o.header.TraceID != "" {
		msg.Metadata.Set(MetaTraceID, o.header.TraceID)
	}

	if o.header.Producer != "" {
		msg.Metadata.Set(MetaProducer, o.header.Producer)
	}

	msg.Metadata.Set(MetaOccurredAt, o.header.OccurredAt.Format(time.RFC3339Nano))

	if o.header.Version != "" {
		msg.Metadata.Set(MetaVersion, o.header.Version)
	}

	return msg, nil
}

// ParseWatermillMessage 解出泛型负载.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	return Decode[T](msg.Payload)
}
