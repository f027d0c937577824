package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/internal/engine"
	"github.com/yeisme/docpipe/pkg/internal/model"
	"github.com/yeisme/docpipe/pkg/internal/service"
	"github.com/yeisme/docpipe/pkg/internal/store"
)

func TestStatus_GetStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := service.NewStatusService(e.deps)

	_, err := svc.GetStatus(ctx, "ownerA", "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	e.mustStart(t, "ownerA", "doc1")

	v, err := svc.GetStatus(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusIngestionStarted, v.CurrentStatus)
	assert.Equal(t, 30, v.Progress)
	assert.Equal(t, "Processing document", v.Message)
	assert.Equal(t, model.DocumentTypeIEP, v.DocumentType)
	assert.Equal(t, "report.pdf", v.FileName)

	e.engine.SetState("job-1", engine.JobFailed, "unsupported_format")
	e.tick(t)

	v, err = svc.GetStatus(ctx, "ownerA", "doc1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, v.CurrentStatus)
	assert.Equal(t, 0, v.Progress)
	assert.Equal(t, "unsupported_format", v.FailureReason)
}

func TestStatus_ListAndSummary(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := service.NewStatusService(e.deps)

	e.mustStart(t, "ownerA", "doc1")
	e.mustStart(t, "ownerA", "doc2")
	e.mustStart(t, "ownerB", "doc3")

	e.engine.SetState("job-1", engine.JobSucceeded, "")
	e.tick(t)

	res, err := svc.List(ctx, "ownerA", service.ListQuery{Status: "ready"})
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	assert.Equal(t, "doc1", res.Items[0].DocumentID)
	assert.Equal(t, 100, res.Items[0].Progress)

	res, err = svc.List(ctx, "ownerA", service.ListQuery{Type: "IEP"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, res.Total)

	_, err = svc.List(ctx, "ownerA", service.ListQuery{Status: "DONE"})
	require.ErrorIs(t, err, service.ErrInvalidFilter)

	_, err = svc.List(ctx, "ownerA", service.ListQuery{Type: "invoice"})
	require.ErrorIs(t, err, service.ErrInvalidFilter)

	sum, err := svc.Summary(ctx, "ownerA")
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum[model.StatusReady])
	assert.EqualValues(t, 1, sum[model.StatusIngestionStarted])
	assert.EqualValues(t, 0, sum[model.StatusFailed])
}
