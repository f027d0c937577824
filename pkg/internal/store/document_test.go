package store_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/internal/store/storetest"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)}
}

func upload(owner, doc, version string) store.UploadInput {
	return store.UploadInput{
		OwnerID:       owner,
		DocumentID:    doc,
		DocumentType:  model.DocumentTypeIEP,
		Bucket:        "docpipe",
		ObjectKey:     owner + "/" + doc + "/report.pdf",
		FileName:      "report.pdf",
		ObjectVersion: version,
		ContentType:   "application/pdf",
		Size:          1024,
	}
}

func newStore(t *testing.T) (*store.DocumentStore, *fakeClock) {
	clock := newClock()
	return store.NewDocumentStore(storetest.NewDB(t)).WithClock(clock.Now), clock
}

func TestUpsert_CreateThenDuplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	rec, outcome, err := s.Upsert(ctx, upload("ownerA", "doc1", "v1"))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertCreated, outcome)
	assert.Equal(t, model.StatusUploaded, rec.Status)
	assert.Equal(t, 1, rec.Attempt)
	assert.False(t, rec.HasJob())

	again, outcome, err := s.Upsert(ctx, upload("ownerA", "doc1", "v1"))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertExisting, outcome)
	assert.Equal(t, rec.Attempt, again.Attempt)

	_, total, err := s.List(ctx, store.ListFilter{OwnerID: "ownerA"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestClaimAndMarkStarted(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore(t)

	rec, _, err := s.Upsert(ctx, upload("ownerA", "doc1", "v1"))
	require.NoError(t, err)

	ok, err := s.Claim(ctx, rec, "tok-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// 租约未过期，第二个认领失败
	ok, err = s.Claim(ctx, rec, "tok-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	// 错误的 token 不能写入任务 id
	assert.ErrorIs(t, s.MarkStarted(ctx, rec, "tok-2", "job-x"), store.ErrConflict)

	require.NoError(t, s.MarkStarted(ctx, rec, "tok-1", "job-1"))
	assert.Equal(t, model.StatusIngestionStarted, rec.Status)

	got, err := s.Get(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID())
	assert.Equal(t, model.StatusIngestionStarted, got.Status)
	require.NotNil(t, got.JobStartedAt)
	assert.True(t, got.JobStartedAt.Equal(clock.Now()))

	// 任务 id 每个尝试只能设置一次
	clock.Advance(time.Hour)

	ok, err = s.Claim(ctx, got, "tok-3", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim_ExpiredLeaseCanBeTakenOver(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore(t)

	rec, _, err := s.Upsert(ctx, upload("ownerA", "doc1", "v1"))
	require.NoError(t, err)

	ok, err := s.Claim(ctx, rec, "crashed", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Minute)

	ok, err = s.Claim(ctx, rec, "fresh", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseClaim(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	rec, _, err := s.Upsert(ctx, upload("ownerA", "doc1", "v1"))
	require.NoError(t, err)

	ok, err := s.Claim(ctx, rec, "tok-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.ReleaseClaim(ctx, rec, "tok-1"))

	ok, err = s.Claim(ctx, rec, "tok-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func startedRecord(t *testing.T, s *store.DocumentStore, owner, doc, job string) *model.DocumentRecord {
	t.Helper()

	ctx := context.Background()

	rec, _, err := s.Upsert(ctx, upload(owner, doc, "v1"))
	require.NoError(t, err)

	ok, err := s.Claim(ctx, rec, "tok", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.MarkStarted(ctx, rec, "tok", job))

	return rec
}

func TestTransition_HappyPath(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore(t)
	rec := startedRecord(t, s, "ownerA", "doc1", "job-1")

	changed, err := s.Transition(ctx, rec, model.StatusIngesting, "")
	require.NoError(t, err)
	assert.True(t, changed)

	// 重复写同一状态是无操作
	changed, err = s.Transition(ctx, rec, model.StatusIngesting, "")
	require.NoError(t, err)
	assert.False(t, changed)

	clock.Advance(time.Minute)

	changed, err = s.Transition(ctx, rec, model.StatusReady, "")
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := s.Get(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusReady, got.Status)
	assert.Equal(t, "job-1", got.JobID())
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.Equal(clock.Now()))
	assert.Empty(t, got.FailureReason)
}

func TestTransition_IllegalAndStale(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	rec := startedRecord(t, s, "ownerA", "doc1", "job-1")

	// 不能跳过 INGESTING
	_, err := s.Transition(ctx, rec, model.StatusReady, "")
	require.Error(t, err)

	// 过期快照：另一个写者已经推进
	stale := *rec

	_, err = s.Transition(ctx, rec, model.StatusFailed, "unsupported_format")
	require.NoError(t, err)

	_, err = s.Transition(ctx, &stale, model.StatusIngesting, "")
	assert.ErrorIs(t, err, store.ErrConflict)

	got, err := s.Get(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, "unsupported_format", got.FailureReason)
}

func TestTransition_LongFailureReasonFitsColumn(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	rec := startedRecord(t, s, "ownerA", "doc1", "job-1")

	reason := strings.Repeat("parser error on page; ", 40)

	changed, err := s.Transition(ctx, rec, model.StatusFailed, reason)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Len(t, rec.FailureReason, model.MaxFailureReasonBytes)

	got, err := s.Get(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, reason[:model.MaxFailureReasonBytes], got.FailureReason)
}

func TestSetSidecarRef_DoesNotTouchStatus(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	rec := startedRecord(t, s, "ownerA", "doc1", "job-1")

	require.NoError(t, s.SetSidecarRef(ctx, "ownerA", "doc1", "ownerA/doc1/report.pdf.extracted.json"))

	got, err := s.Get(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, "ownerA/doc1/report.pdf.extracted.json", got.SidecarRef)

	// 先前读到的快照仍可推进状态
	_, err = s.Transition(ctx, rec, model.StatusIngesting, "")
	require.NoError(t, err)

	assert.ErrorIs(t, s.SetSidecarRef(ctx, "ownerA", "missing", "x"), store.ErrNotFound)
}

func TestUpsert_NewVersionAfterTerminalStartsNewAttempt(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	rec := startedRecord(t, s, "ownerA", "doc1", "job-1")

	_, err := s.Transition(ctx, rec, model.StatusFailed, model.ReasonTimeout)
	require.NoError(t, err)

	// 相同版本：重复通知
	_, outcome, err := s.Upsert(ctx, upload("ownerA", "doc1", "v1"))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertExisting, outcome)

	fresh, outcome, err := s.Upsert(ctx, upload("ownerA", "doc1", "v2"))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertNewAttempt, outcome)
	assert.Equal(t, model.StatusUploaded, fresh.Status)
	assert.Equal(t, 2, fresh.Attempt)
	assert.False(t, fresh.HasJob())
	assert.Nil(t, fresh.CompletedAt)
	assert.Empty(t, fresh.FailureReason)
	assert.Equal(t, "v2", fresh.ObjectVersion)
}

func TestUpsert_NewVersionWhileRunningIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	startedRecord(t, s, "ownerA", "doc1", "job-1")

	rec, outcome, err := s.Upsert(ctx, upload("ownerA", "doc1", "v2"))
	require.NoError(t, err)
	assert.Equal(t, store.UpsertExisting, outcome)
	assert.Equal(t, "job-1", rec.JobID())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	rec := startedRecord(t, s, "ownerA", "doc1", "job-1")

	_, err := s.Reset(ctx, "ownerA", "doc1")
	assert.ErrorIs(t, err, store.ErrConflict)

	_, err = s.Transition(ctx, rec, model.StatusIngesting, "")
	require.NoError(t, err)
	_, err = s.Transition(ctx, rec, model.StatusReady, "")
	require.NoError(t, err)

	fresh, err := s.Reset(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUploaded, fresh.Status)
	assert.Equal(t, 2, fresh.Attempt)
	assert.False(t, fresh.HasJob())

	_, err = s.Reset(ctx, "ownerA", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListQueries(t *testing.T) {
	ctx := context.Background()
	s, clock := newStore(t)

	startedRecord(t, s, "ownerA", "doc1", "job-1")
	rec2 := startedRecord(t, s, "ownerA", "doc2", "job-2")
	_, err := s.Transition(ctx, rec2, model.StatusFailed, "x")
	require.NoError(t, err)

	_, _, err = s.Upsert(ctx, upload("ownerB", "doc3", "v1"))
	require.NoError(t, err)

	recon, err := s.ListReconcilable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recon, 1)
	assert.Equal(t, "doc1", recon[0].DocumentID)

	failed, total, err := s.List(ctx, store.ListFilter{OwnerID: "ownerA", Status: model.StatusFailed})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "doc2", failed[0].DocumentID)

	byType, _, err := s.List(ctx, store.ListFilter{OwnerID: "ownerB", Type: model.DocumentTypeIEP})
	require.NoError(t, err)
	assert.Len(t, byType, 1)

	counts, err := s.CountByStatus(ctx, "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[model.StatusIngestionStarted])
	assert.EqualValues(t, 1, counts[model.StatusFailed])
	assert.EqualValues(t, 1, counts[model.StatusUploaded])

	clock.Advance(time.Hour)

	stale, err := s.ListStaleUploaded(ctx, clock.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "doc3", stale[0].DocumentID)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	for _, doc := range []string{"d1", "d2"} {
		_, _, err := s.Upsert(ctx, upload("ownerA", doc, "v1"))
		require.NoError(t, err)
	}

	_, _, err := s.Upsert(ctx, upload("ownerB", "d1", "v1"))
	require.NoError(t, err)

	n, err := s.Delete(ctx, "ownerA", "d1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.Delete(ctx, "ownerA", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = s.Get(ctx, "ownerB", "d1")
	assert.NoError(t, err)
}
