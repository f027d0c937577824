package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/engine/enginetest"
	"github.com/yeisme/docpipe/pkg/internal/inference"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/service"
	"github.com/yeisme/docpipe/pkg/internal/sidecar/sidecartest"
	"github.com/yeisme/docpipe/pkg/internal/storage/kv"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/internal/store/storetest"
	"github.com/yeisme/docpipe/pkg/queue"
)

const (
	testBucket = "docpipe"
	maxJobAge  = 2 * time.Hour
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t = c.t.Add(d)
}

// recordingPublisher 记录发布的消息.
type recordingPublisher struct {
	mu   sync.Mutex
	msgs map[string][]*message.Message
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}

	p.msgs[topic] = append(p.msgs[topic], msgs...)

	return nil
}

func (p *recordingPublisher) Topic(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]*message.Message(nil), p.msgs[topic]...)
}

type fakeInference struct {
	mu    sync.Mutex
	calls int
	out   inference.Insights
	err   error
}

func (f *fakeInference) Infer(_ context.Context, _ model.ObjectRef, modelID string) (inference.Insights, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return inference.Insights{}, f.err
	}

	out := f.out
	out.ModelID = modelID

	return out, nil
}

type env struct {
	clock     *fakeClock
	docs      *store.DocumentStore
	engine    *enginetest.Fake
	infer     *fakeInference
	objects   *sidecartest.MemoryStore
	pub       *recordingPublisher
	kv        *kv.MemoryKV
	deps      service.Deps
	trigger   *service.IngestionTrigger
	reconcile *service.Reconciler
}

func newEnv(t *testing.T) *env {
	t.Helper()

	clock := &fakeClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
	db := storetest.NewDB(t)

	e := &env{
		clock:   clock,
		docs:    store.NewDocumentStore(db).WithClock(clock.Now),
		engine:  enginetest.NewFake(),
		infer:   &fakeInference{out: inference.Insights{Confidence: 0.85, Parsed: true, Data: map[string]any{"student_name": "A"}}},
		objects: sidecartest.NewMemoryStore(),
		pub:     &recordingPublisher{msgs: make(map[string][]*message.Message)},
		kv:      kv.NewMemoryKV(),
	}

	e.deps = service.Deps{
		Documents: e.docs,
		Deletions: store.NewDeletionStore(db),
		Engine:    e.engine,
		Inference: e.infer,
		Objects:   e.objects,
		Publisher: e.pub,
		KV:        e.kv,
		Pipeline: configs.PipelineConfig{
			Bucket:                 testBucket,
			ReconcileConcurrency:   4,
			ReconcileBatchSize:     100,
			MaxJobAge:              maxJobAge,
			ClaimLease:             2 * time.Minute,
			ResyncLease:            30 * time.Minute,
			AllowedExtensions:      []string{".pdf", ".txt", ".doc", ".docx"},
			TagOwner:               true,
			WriteProcessingSidecar: true,
		},
		Events: configs.EventsConfig{
			ObjectCreatedTopic:     queue.TopicObjectCreated,
			AnalysisRequestedTopic: queue.TopicAnalysisRequested,
			StatusChangedTopic:     queue.TopicStatusChanged,
			PublishStatusChanges:   true,
		},
		EngineTimeout: time.Second,
		Inferencing: configs.InferenceConfig{
			Enabled: true,
			ModelID: "llama3.1",
			Timeout: time.Second,
		},
		Logger: zerolog.Nop(),
		Now:    clock.Now,
	}

	e.trigger = service.NewIngestionTrigger(e.deps)
	e.reconcile = service.NewReconciler(e.deps, e.trigger)

	return e
}

func objectKey(owner, doc string) string {
	return owner + "/" + doc + "/report.pdf"
}

// upload 模拟一次上传并返回对应的对象事件.
func (e *env) upload(owner, doc, version string) queue.ObjectCreatedPayload {
	key := objectKey(owner, doc)
	e.objects.Put(testBucket, key, []byte("%PDF-1.4 student report"))

	return queue.ObjectCreatedPayload{
		Bucket:       testBucket,
		Key:          key,
		ETag:         version,
		Size:         23,
		ContentType:  "application/pdf",
		UserMetadata: map[string]string{"X-Amz-Meta-Document-Type": "iep"},
	}
}

func (e *env) mustStart(t *testing.T, owner, doc string) *model.DocumentRecord {
	t.Helper()

	res, err := e.trigger.Handle(context.Background(), e.upload(owner, doc, "v1"))
	require.NoError(t, err)
	require.Equal(t, service.OutcomeStarted, res.Outcome)

	return res.Record
}

func (e *env) get(t *testing.T, owner, doc string) *model.DocumentRecord {
	t.Helper()

	rec, err := e.docs.Get(context.Background(), owner, doc)
	require.NoError(t, err)

	return rec
}

func (e *env) tick(t *testing.T) service.ReconcileReport {
	t.Helper()

	rep, err := e.reconcile.Tick(context.Background())
	require.NoError(t, err)

	return rep
}
