package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/service"
)

func TestResync_LeaseSuppressesOverlap(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	res, err := service.NewResyncer(e.deps).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.ResyncStarted, res)

	// 另一副本在租约期内
	res, err = service.NewResyncer(e.deps).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.ResyncSkipped, res)
	assert.Equal(t, 1, e.engine.ResyncCalls())
}

func TestResync_AlreadyRunningIsSuccess(t *testing.T) {
	e := newEnv(t)
	e.engine.ResyncErr = engine.ErrAlreadyRunning

	res, err := service.NewResyncer(e.deps).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, service.ResyncAlreadyRunning, res)
}

func TestResync_FailureReleasesLease(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.engine.ResyncErr = errors.New("connection refused")

	res, err := service.NewResyncer(e.deps).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, service.ResyncFailed, res)

	held, err := e.kv.Exists(ctx, service.ResyncLeaseKey)
	require.NoError(t, err)
	assert.False(t, held)

	e.engine.ResyncErr = nil

	res, err = service.NewResyncer(e.deps).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.ResyncStarted, res)
}

func TestResync_DoesNotTouchRecords(t *testing.T) {
	e := newEnv(t)
	e.mustStart(t, "ownerA", "doc1")

	before := e.get(t, "ownerA", "doc1")

	_, err := service.NewResyncer(e.deps).Run(context.Background())
	require.NoError(t, err)

	after := e.get(t, "ownerA", "doc1")
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}
