package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/docpipe/pkg/scheduler"
)

func TestScheduler_RunNowRecordsOutcome(t *testing.T) {
	s, err := scheduler.NewScheduler(zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Shutdown() })

	var ok, bad atomic.Int32

	require.NoError(t, s.AddInterval("ok", time.Hour, func(context.Context) error {
		ok.Add(1)
		return nil
	}))
	require.NoError(t, s.AddCron("bad", "0 2 * * *", func(context.Context) error {
		bad.Add(1)
		return errors.New("boom")
	}))

	require.Error(t, s.AddCron("bad", "0 3 * * *", func(context.Context) error { return nil }))
	require.Error(t, s.AddInterval("zero", 0, func(context.Context) error { return nil }))

	s.Start()

	require.NoError(t, s.RunNow("ok"))
	require.NoError(t, s.RunNow("bad"))
	require.Error(t, s.RunNow("missing"))

	require.Eventually(t, func() bool {
		infos := s.GetJobInfos()
		return len(infos) == 2 && infos[0].Status == scheduler.StatusError && infos[1].Runs >= 1 && !infos[1].LastSuccess.IsZero()
	}, 5*time.Second, 20*time.Millisecond)

	infos := s.GetJobInfos()
	assert.Equal(t, "bad", infos[0].Name)
	assert.Equal(t, "boom", infos[0].Error)
	assert.Equal(t, "0 2 * * *", infos[0].Schedule)
	assert.Equal(t, "ok", infos[1].Name)
	assert.GreaterOrEqual(t, ok.Load(), int32(1))
}
