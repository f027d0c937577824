package mq_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/storage/mq"
)

func TestNew_UnsupportedType(t *testing.T) {
	_, err := mq.New(context.Background(), configs.MQConfig{Type: "kafka"}, false)
	if err == nil {
		t.Fatal("expected error for unsupported mq type")
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cfg := configs.MQConfig{
		Type:   configs.MQTypeMemory,
		Memory: configs.MQMemoryConfig{OutputBuffer: 16},
	}

	client, err := mq.New(ctx, cfg, false)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer client.Close()

	ch, err := client.Subscribe(ctx, "dp.object.created")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"key":"o/d/a.pdf"}`))
	if err := client.Publish(ctx, "dp.object.created", msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if string(got.Payload) != `{"key":"o/d/a.pdf"}` {
			t.Errorf("unexpected payload %s", got.Payload)
		}

		got.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestRegisteredTypes(t *testing.T) {
	types := mq.RegisteredTypes()

	want := map[configs.MQType]bool{configs.MQTypeMemory: false, configs.MQTypeNATS: false}
	for _, typ := range types {
		want[typ] = true
	}

	for typ, ok := range want {
		if !ok {
			t.Errorf("mq type %s not registered", typ)
		}
	}
}
