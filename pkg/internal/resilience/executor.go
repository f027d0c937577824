// Package resilience 为出站调用（摄取引擎、推理引擎）提供指数退避重试与按操作划分的熔断.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/yeisme/docpipe/pkg/configs"
)

// Classification 错误分类结果.
type Classification struct {
	// Retryable 是否在本次调用内重试
	Retryable bool
	// RecordFailure 是否计入熔断失败
	RecordFailure bool
}

// Classifier 对错误分类，nil 表示不重试但计入失败.
type Classifier func(err error) Classification

// Executor 组合重试与熔断.
type Executor struct {
	cfg    configs.RetryConfig
	logger zerolog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewExecutor 创建执行器，非法参数回落到安全值.
func NewExecutor(cfg configs.RetryConfig, logger zerolog.Logger) *Executor {
	return &Executor{
		cfg:      normalize(cfg),
		logger:   logger,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func normalize(cfg configs.RetryConfig) configs.RetryConfig {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}

	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	if cfg.BreakerHalfOpenMax == 0 {
		cfg.BreakerHalfOpenMax = 1
	}

	return cfg
}

// Execute 在 operation 名下执行 fn. 熔断打开时直接返回 gobreaker.ErrOpenState.
func (e *Executor) Execute(ctx context.Context, operation string, fn func(context.Context) error, classify Classifier) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}

	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}

	if classify == nil {
		classify = defaultClassifier
	}

	if !e.cfg.BreakerEnabled {
		return e.retry(ctx, op, fn, classify)
	}

	_, err := e.breaker(op, classify).Execute(func() (any, error) {
		return nil, e.retry(ctx, op, fn, classify)
	})

	return err
}

func (e *Executor) retry(ctx context.Context, op string, fn func(context.Context) error, classify Classifier) error {
	backoff := e.cfg.InitialBackoff

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !classify(err).Retryable || attempt >= e.cfg.MaxAttempts {
			return err
		}

		wait := min(backoff, e.cfg.MaxBackoff)
		e.logger.Warn().Err(err).
			Str("operation", op).
			Int("attempt", attempt).
			Int("max_attempts", e.cfg.MaxAttempts).
			Dur("backoff", wait).
			Msg("retrying")

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		}

		backoff = min(time.Duration(float64(backoff)*e.cfg.Multiplier), e.cfg.MaxBackoff)
	}
}

func (e *Executor) breaker(op string, classify Classifier) *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()

	if cb, ok := e.breakers[op]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        op,
		MaxRequests: e.cfg.BreakerHalfOpenMax,
		Timeout:     e.cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < e.cfg.BreakerMinRequests {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= e.cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classify(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.logger.Warn().Str("operation", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	e.breakers[op] = cb

	return cb
}

// IsCircuitOpen 错误是否来自打开或半开受限的熔断器.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func defaultClassifier(error) Classification {
	return Classification{RecordFailure: true}
}
