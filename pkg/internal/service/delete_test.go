package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/service"
	"github.com/yeisme/docpipe/pkg/internal/sidecar"
	"github.com/yeisme/docpipe/pkg/internal/store"
)

func TestDeletion_Document(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := service.NewDeletionService(e.deps)

	_, err := svc.DeleteDocument(ctx, "ownerA", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	rec := e.mustStart(t, "ownerA", "doc1")
	e.mustStart(t, "ownerA", "doc2")

	rep, err := svc.DeleteDocument(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.DeletionCompleted, rep.Status)
	assert.Len(t, rep.DeletionID, 26)
	assert.Equal(t, 1, rep.Resources[model.ResourceObjects].Count)
	assert.Equal(t, 1, rep.Resources[model.ResourceRecords].Count)
	assert.GreaterOrEqual(t, rep.Resources[model.ResourceSidecars].Count, 2)

	assert.False(t, e.objects.Has(testBucket, rec.ObjectKey))
	assert.False(t, e.objects.Has(testBucket, sidecar.Key(rec.ObjectKey, sidecar.KindMetadata)))

	_, err = e.docs.Get(ctx, "ownerA", "doc1")
	require.ErrorIs(t, err, store.ErrNotFound)

	// 其他文档不受影响
	assert.True(t, e.objects.Has(testBucket, objectKey("ownerA", "doc2")))
	e.get(t, "ownerA", "doc2")
}

func TestDeletion_PartialThenRetry(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := service.NewDeletionService(e.deps)

	e.mustStart(t, "ownerA", "doc1")
	e.mustStart(t, "ownerA", "doc2")
	e.mustStart(t, "ownerB", "doc3")

	e.objects.FailRemove = true

	rep, err := svc.DeleteOwner(ctx, "ownerA")
	require.NoError(t, err)
	assert.Equal(t, model.DeletionPartial, rep.Status)
	assert.Equal(t, model.StepFailed, rep.Resources[model.ResourceSidecars].Status)
	assert.Equal(t, model.StepFailed, rep.Resources[model.ResourceObjects].Status)
	assert.NotEmpty(t, rep.Resources[model.ResourceObjects].Error)
	assert.Equal(t, model.StepSucceeded, rep.Resources[model.ResourceRecords].Status)
	assert.Equal(t, 2, rep.Resources[model.ResourceRecords].Count)

	e.objects.FailRemove = false

	done, err := svc.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, done)

	got, err := svc.Get(ctx, rep.DeletionID)
	require.NoError(t, err)
	assert.Equal(t, model.DeletionCompleted, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 2, got.Resources[model.ResourceObjects].Count)
	// 已成功的步骤不重跑
	assert.Equal(t, 2, got.Resources[model.ResourceRecords].Count)

	assert.False(t, e.objects.Has(testBucket, objectKey("ownerA", "doc1")))
	assert.True(t, e.objects.Has(testBucket, objectKey("ownerB", "doc3")))

	done, err = svc.RetryPending(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, done)
}
