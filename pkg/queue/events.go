package queue

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/minio/minio-go/v7/pkg/notification"
)

// ErrEmptyEvent 消息里既没有信封负载也没有通知记录.
var ErrEmptyEvent = errors.New("queue: event carries no object")

// Publisher 发布到逻辑主题，storage/mq.Client 实现了它.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// DeterministicID 由若干片段计算稳定的消息 ID，同一输入总是得到同一 ID，
// 支持去重的总线（JetStream Nats-Msg-Id）可据此丢弃重复发布.
func DeterministicID(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}

	return strconv.FormatUint(d.Sum64(), 16)
}

// PublishAnalysisRequested 发布内容分析请求，同一文档同一尝试使用同一消息 ID.
func PublishAnalysisRequested(ctx context.Context, pub Publisher, topic string, payload AnalysisRequestedPayload, opts ...Option) error {
	id := DeterministicID(topic, payload.OwnerID, payload.DocumentID, strconv.Itoa(payload.Attempt))
	opts = append([]Option{WithMessageID(id), WithProducer(Producer)}, opts...)

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(ctx, topic, msg)
}

// PublishStatusChanged 发布状态迁移通知.
func PublishStatusChanged(ctx context.Context, pub Publisher, topic string, payload StatusChangedPayload, opts ...Option) error {
	id := DeterministicID(topic, payload.OwnerID, payload.DocumentID, strconv.Itoa(payload.Attempt), payload.To)
	opts = append([]Option{WithMessageID(id), WithProducer(Producer)}, opts...)

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(ctx, topic, msg)
}

// PublishObjectCreated 发布对象创建事件（CLI 与测试模拟上传时使用）.
func PublishObjectCreated(ctx context.Context, pub Publisher, topic string, payload ObjectCreatedPayload, opts ...Option) error {
	opts = append([]Option{WithProducer(Producer)}, opts...)

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	return pub.Publish(ctx, topic, msg)
}

// ParseAnalysisRequested 解析内容分析请求.
func ParseAnalysisRequested(msg *message.Message) (Message[AnalysisRequestedPayload], error) {
	return ParseWatermillMessage[AnalysisRequestedPayload](msg)
}

// ParseStatusChanged 解析状态迁移通知.
func ParseStatusChanged(msg *message.Message) (Message[StatusChangedPayload], error) {
	return ParseWatermillMessage[StatusChangedPayload](msg)
}

// objectCreatedWire 同时覆盖信封格式与 MinIO 桶通知格式.
type objectCreatedWire struct {
	Header  *EventHeader          `json:"header"`
	Payload *ObjectCreatedPayload `json:"payload"`
	Records []notification.Event  `json:"Records"`
}

// ParseObjectCreated 把消息解析为一个或多个对象创建事件.
// MinIO 通知中的非创建事件被忽略，对象键做 URL 解码.
func ParseObjectCreated(msg *message.Message) ([]ObjectCreatedPayload, error) {
	return DecodeObjectCreated(msg.Payload)
}

// DecodeObjectCreated 见 ParseObjectCreated.
func DecodeObjectCreated(b []byte) ([]ObjectCreatedPayload, error) {
	var w objectCreatedWire
	if err := sonic.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("decode object event: %w", err)
	}

	if w.Payload != nil && w.Payload.Key != "" {
		return []ObjectCreatedPayload{*w.Payload}, nil
	}

	if len(w.Records) == 0 {
		return nil, ErrEmptyEvent
	}

	out := make([]ObjectCreatedPayload, 0, len(w.Records))

	for _, rec := range w.Records {
		if rec.EventName != "" && !strings.Contains(rec.EventName, "ObjectCreated") {
			continue
		}

		key := rec.S3.Object.Key
		if unescaped, err := url.QueryUnescape(key); err == nil {
			key = unescaped
		}

		out = append(out, ObjectCreatedPayload{
			Bucket:       rec.S3.Bucket.Name,
			Key:          key,
			ETag:         strings.Trim(rec.S3.Object.ETag, `"`),
			VersionID:    rec.S3.Object.VersionID,
			Size:         rec.S3.Object.Size,
			ContentType:  rec.S3.Object.ContentType,
			UserMetadata: rec.S3.Object.UserMetadata,
		})
	}

	return out, nil
}
