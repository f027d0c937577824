package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/sidecar"
	"github.com/yeisme/docpipe/pkg/queue"
)

func TestReconcile_RunningThenSucceeded(t *testing.T) {
	e := newEnv(t)
	e.mustStart(t, "ownerA", "doc1")

	// PENDING：不变
	rep := e.tick(t)
	assert.Equal(t, 1, rep.Scanned)
	assert.Zero(t, rep.Advanced)
	assert.Equal(t, model.StatusIngestionStarted, e.get(t, "ownerA", "doc1").Status)

	e.engine.SetState("job-1", engine.JobRunning, "")

	rep = e.tick(t)
	assert.Equal(t, 1, rep.Advanced)
	assert.Equal(t, model.StatusIngesting, e.get(t, "ownerA", "doc1").Status)

	// 重复应用同一状态是无操作
	rep = e.tick(t)
	assert.Zero(t, rep.Advanced)

	e.engine.SetState("job-1", engine.JobSucceeded, "")

	rep = e.tick(t)
	assert.Equal(t, 1, rep.Ready)

	rec := e.get(t, "ownerA", "doc1")
	assert.Equal(t, model.StatusReady, rec.Status)
	assert.Equal(t, "job-1", rec.JobID())
	require.NotNil(t, rec.CompletedAt)

	// 终态记录不再被扫描
	rep = e.tick(t)
	assert.Zero(t, rep.Scanned)

	var chain sidecar.Processing

	ok, err := sidecar.NewManager(e.objects).Read(context.Background(), testBucket, rec.ObjectKey, sidecar.KindProcessing, &chain)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "READY", chain.CurrentStatus)

	var statuses []string
	for _, s := range chain.StatusChain {
		statuses = append(statuses, s.Status)
	}

	assert.Equal(t, []string{"INGESTION_STARTED", "INGESTING", "READY"}, statuses)
	assert.Len(t, e.pub.Topic(queue.TopicStatusChanged), 3)
}

func TestReconcile_SucceededFromStartedPassesThroughIngesting(t *testing.T) {
	e := newEnv(t)
	e.mustStart(t, "ownerA", "doc1")

	e.engine.SetState("job-1", engine.JobSucceeded, "")

	rep := e.tick(t)
	assert.Equal(t, 1, rep.Ready)
	assert.Equal(t, model.StatusReady, e.get(t, "ownerA", "doc1").Status)

	var to []string

	for _, m := range e.pub.Topic(queue.TopicStatusChanged) {
		sc, err := queue.ParseStatusChanged(m)
		require.NoError(t, err)

		to = append(to, sc.Payload.To)
	}

	assert.Equal(t, []string{"INGESTION_STARTED", "INGESTING", "READY"}, to)
}

func TestReconcile_LongEngineReasonKeptAsFailure(t *testing.T) {
	e := newEnv(t)
	e.mustStart(t, "ownerA", "doc1")

	reasons := strings.Repeat("page 3: unsupported embedded font; ", 20)
	e.engine.SetState("job-1", engine.JobFailed, reasons)

	rep := e.tick(t)
	assert.Equal(t, 1, rep.Failed)
	assert.Zero(t, rep.TimedOut)

	rec := e.get(t, "ownerA", "doc1")
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, reasons[:model.MaxFailureReasonBytes], rec.FailureReason)
}

func TestReconcile_EngineFailure(t *testing.T) {
	e := newEnv(t)
	e.mustStart(t, "ownerA", "doc1")
	e.mustStart(t, "ownerA", "doc2")

	e.engine.SetState("job-1", engine.JobFailed, "unsupported_format")
	e.engine.SetState("job-2", engine.JobFailed, "")

	rep := e.tick(t)
	assert.Equal(t, 2, rep.Failed)
	assert.Zero(t, rep.TimedOut)

	doc1 := e.get(t, "ownerA", "doc1")
	assert.Equal(t, model.StatusFailed, doc1.Status)
	assert.Equal(t, "unsupported_format", doc1.FailureReason)
	assert.Equal(t, "job-1", doc1.JobID())

	doc2 := e.get(t, "ownerA", "doc2")
	assert.Equal(t, model.StatusFailed, doc2.Status)
	assert.Equal(t, model.ReasonEngineFailure, doc2.FailureReason)

	// 终态之后引擎再报告成功也不会回退
	e.engine.SetState("job-1", engine.JobSucceeded, "")
	e.tick(t)
	assert.Equal(t, model.StatusFailed, e.get(t, "ownerA", "doc1").Status)
}

func TestReconcile_WatchdogFiresAfterMaxAge(t *testing.T) {
	e := newEnv(t)
	e.mustStart(t, "ownerA", "doc1")

	e.clock.Advance(maxJobAge)

	rep := e.tick(t)
	assert.Zero(t, rep.TimedOut)
	assert.Equal(t, model.StatusIngestionStarted, e.get(t, "ownerA", "doc1").Status)

	e.clock.Advance(time.Second)

	rep = e.tick(t)
	assert.Equal(t, 1, rep.TimedOut)

	rec := e.get(t, "ownerA", "doc1")
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, model.ReasonTimeout, rec.FailureReason)
}

func TestReconcile_WatchdogCoversRunningAndUnreachable(t *testing.T) {
	e := newEnv(t)
	e.mustStart(t, "ownerA", "running")
	e.mustStart(t, "ownerA", "flaky")

	e.engine.SetState("job-1", engine.JobRunning, "")
	e.engine.SetStatusErr("job-2", engine.ErrUnavailable)

	rep := e.tick(t)
	assert.Equal(t, 1, rep.Advanced)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, model.StatusIngestionStarted, e.get(t, "ownerA", "flaky").Status)

	e.clock.Advance(maxJobAge + time.Minute)

	rep = e.tick(t)
	assert.Equal(t, 2, rep.TimedOut)
	assert.Zero(t, rep.Errors)
	assert.Equal(t, model.StatusFailed, e.get(t, "ownerA", "running").Status)
	assert.Equal(t, model.StatusFailed, e.get(t, "ownerA", "flaky").Status)
}

func TestReconcile_UnknownJobWaitsForWatchdog(t *testing.T) {
	e := newEnv(t)
	e.mustStart(t, "ownerA", "doc1")

	e.engine.SetStatusErr("job-1", engine.ErrJobNotFound)

	rep := e.tick(t)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, model.StatusIngestionStarted, e.get(t, "ownerA", "doc1").Status)
}

func TestReconcile_DocumentsAreIndependent(t *testing.T) {
	e := newEnv(t)

	for _, doc := range []string{"a", "b", "c"} {
		e.mustStart(t, "ownerA", doc)
	}

	e.engine.SetStatusErr("job-1", engine.ErrUnavailable)
	e.engine.SetState("job-2", engine.JobSucceeded, "")
	e.engine.SetState("job-3", engine.JobRunning, "")

	rep := e.tick(t)
	assert.Equal(t, 3, rep.Scanned)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 1, rep.Ready)

	assert.Equal(t, model.StatusIngestionStarted, e.get(t, "ownerA", "a").Status)
	assert.Equal(t, model.StatusReady, e.get(t, "ownerA", "b").Status)
	assert.Equal(t, model.StatusIngesting, e.get(t, "ownerA", "c").Status)

	// 瞬时错误恢复后下一轮继续推进
	e.engine.SetStatusErr("job-1", nil)
	e.engine.SetState("job-1", engine.JobSucceeded, "")

	rep = e.tick(t)
	assert.Equal(t, 1, rep.Ready)
	assert.Equal(t, model.StatusReady, e.get(t, "ownerA", "a").Status)
}
