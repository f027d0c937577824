package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/store"
	"github.com/yeisme/docpipe/pkg/internal/store/storetest"
)

func TestDeletionStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := store.NewDeletionStore(storetest.NewDB(t))

	job := &model.DeletionJob{
		ID:      "01HZX0000000000000000000AA",
		OwnerID: "ownerA",
		Status:  model.DeletionPending,
	}
	for _, r := range model.DeletionResources {
		job.Steps = append(job.Steps, model.DeletionStep{Resource: r, Status: model.StepPending})
	}

	require.NoError(t, s.Create(ctx, job))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 3)

	step := got.Step(model.ResourceSidecars)
	require.NotNil(t, step)
	step.Status = model.StepSucceeded
	step.Count = 4
	require.NoError(t, s.SaveStep(ctx, step))

	got.Status = model.DeletionPartial
	got.Attempts = 1
	require.NoError(t, s.SaveStatus(ctx, got))

	pending, err := s.ListUnfinished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.StepSucceeded, pending[0].Step(model.ResourceSidecars).Status)
	assert.Equal(t, 4, pending[0].Step(model.ResourceSidecars).Count)

	got.Status = model.DeletionCompleted
	require.NoError(t, s.SaveStatus(ctx, got))

	pending, err = s.ListUnfinished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
