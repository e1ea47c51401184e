// Package retry runs remote operations with classified retry.
package retry

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"buildctl-agent/src/logger"
	"buildctl-agent/src/metrics"
	"buildctl-agent/src/provider"
)

// Policy bounds one retried operation.
type Policy struct {
	// AttemptLimit caps the total number of tries, the first included.
	AttemptLimit int
	Delay        time.Duration
	// Classify reports whether a failure may be retried.
	// Defaults to provider.IsTransient.
	Classify func(error) bool
}

// RetryExhaustedError is returned when every attempt failed transiently.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts", e.Attempts)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// AttemptCount returns the number of attempts made.
func (e *RetryExhaustedError) AttemptCount() int {
	return e.Attempts
}

// Option configures an Executor.
type Option func(*Executor)

// WithMetrics counts attempts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// Executor is stateless between calls and safe for concurrent use.
type Executor struct {
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewExecutor creates an Executor.
func NewExecutor(log logger.Logger, opts ...Option) *Executor {
	e := &Executor{log: log}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// backoff spaces attempts by a constant delay, one step per attempt.
func backoff(p Policy) wait.Backoff {
	return wait.Backoff{
		Duration: p.Delay,
		Factor:   1,
		Steps:    p.AttemptLimit,
	}
}

// Do calls op until it succeeds, fails permanently or p.AttemptLimit tries
// have failed transiently. A permanent failure is returned unchanged.
func (e *Executor) Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.AttemptLimit < 1 {
		return provider.Validationf("attempt limit %d is invalid, must be at least 1", p.AttemptLimit)
	}
	if p.Delay < 0 {
		return provider.Validationf("retry delay %v is invalid, must not be negative", p.Delay)
	}
	classify := p.Classify
	if classify == nil {
		classify = provider.IsTransient
	}

	var (
		attempt   int
		last      error
		permanent error
	)
	err := wait.ExponentialBackoffWithContext(ctx, backoff(p), func(ctx context.Context) (bool, error) {
		attempt++
		err := op(ctx)
		if err == nil {
			e.metrics.RetryAttempt("success")
			return true, nil
		}
		if !classify(err) {
			e.metrics.RetryAttempt("permanent")
			permanent = err
			return false, err
		}
		e.metrics.RetryAttempt("transient")
		last = err

		if attempt < p.AttemptLimit {
			e.log.Warn("[RetryExecutor] attempt %d/%d failed: %v, retrying in %v", attempt, p.AttemptLimit, err, p.Delay)
		}
		return false, nil
	})

	switch {
	case err == nil:
		return nil
	case permanent != nil:
		return permanent
	case ctx.Err() != nil:
		return provider.NewInterrupted(ctx.Err())
	}

	e.log.Error("[RetryExecutor] giving up after %d attempts: %v", attempt, last)
	return &RetryExhaustedError{Attempts: attempt, Err: last}
}

// Run is Do for operations producing a value.
func Run[T any](ctx context.Context, e *Executor, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := e.Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
