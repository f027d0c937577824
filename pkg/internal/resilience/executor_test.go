package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/yeisme/docpipe/pkg/configs"
	"github.com/yeisme/docpipe/pkg/internal/resilience"
)

var errTemp = errors.New("temporary")

func retryable(err error) resilience.Classification {
	return resilience.Classification{Retryable: errors.Is(err, errTemp), RecordFailure: true}
}

func TestExecute_RetriesTemporaryFailure(t *testing.T) {
	exec := resilience.NewExecutor(configs.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}, zerolog.Nop())

	attempts := 0
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}

		return nil
	}, retryable)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}

	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecute_PermanentFailureNotRetried(t *testing.T) {
	exec := resilience.NewExecutor(configs.RetryConfig{MaxAttempts: 5, Multiplier: 2}, zerolog.Nop())

	errPermanent := errors.New("permanent")
	attempts := 0

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, retryable)
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}

	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecute_OpensCircuit(t *testing.T) {
	exec := resilience.NewExecutor(configs.RetryConfig{
		MaxAttempts:         1,
		Multiplier:          2,
		BreakerEnabled:      true,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
		BreakerHalfOpenMax:  1,
	}, zerolog.Nop())

	for i := range 2 {
		err := exec.Execute(context.Background(), "op", func(context.Context) error { return errTemp }, nil)
		if !errors.Is(err, errTemp) {
			t.Fatalf("iteration %d: expected temporary error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatal("circuit should be open")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !resilience.IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}

	// 不同操作名使用独立熔断器
	if err := exec.Execute(context.Background(), "other", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("other operation: %v", err)
	}
}

func TestExecute_CanceledContext(t *testing.T) {
	exec := resilience.NewExecutor(configs.RetryConfig{MaxAttempts: 3, Multiplier: 1}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, "op", func(context.Context) error {
		t.Fatal("must not run with canceled context")
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
