// Package resilience wraps long-running units of work with a timeout and a
// bounded retry loop using linear backoff.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

// ErrTimeout reports that an attempt did not settle in time.
var ErrTimeout = errors.New("operation timed out")

// DefaultStep is the linear backoff unit: attempt n waits n × DefaultStep.
const DefaultStep = 5 * time.Second

// Cleaner is invoked between attempts to relieve memory pressure.
type Cleaner interface {
	CheckAndCleanup(ctx context.Context, label string) bool
}

// LinearBackOff waits Step × n before the n-th retry and stops after
// MaxRetries retries.
type LinearBackOff struct {
	Step       time.Duration
	MaxRetries int
	n          int
}

// NextBackOff implements backoff.BackOff.
func (b *LinearBackOff) NextBackOff() time.Duration {
	if b.n >= b.MaxRetries {
		return backoff.Stop
	}
	b.n++
	return time.Duration(b.n) * b.Step
}

// Reset implements backoff.BackOff.
func (b *LinearBackOff) Reset() { b.n = 0 }

// Wrapper applies the timeout/retry policy.
type Wrapper struct {
	step    time.Duration
	cleaner Cleaner
	log     logger.Logger
}

// New builds a Wrapper. A non-positive step uses DefaultStep; cleaner may be nil.
func New(step time.Duration, cleaner Cleaner, log logger.Logger) *Wrapper {
	if step <= 0 {
		step = DefaultStep
	}
	return &Wrapper{step: step, cleaner: cleaner, log: logger.Ensure(log)}
}

// Do runs op until it succeeds, each attempt bounded by timeout, retrying at
// most maxRetries times.
func (w *Wrapper) Do(ctx context.Context, name string, timeout time.Duration, maxRetries int, op func(context.Context) error) error {
	_, err := DoValue(ctx, w, name, timeout, maxRetries, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, w *Wrapper, name string, timeout time.Duration, maxRetries int, op func(context.Context) (T, error)) (T, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	policy := backoff.WithContext(&LinearBackOff{Step: w.step, MaxRetries: maxRetries}, ctx)

	var (
		result  T
		attempt int
	)
	operation := func() error {
		attempt++
		if attempt > 1 && w.cleaner != nil {
			w.cleaner.CheckAndCleanup(ctx, name)
		}
		v, err := runAttempt(ctx, name, timeout, op)
		if err != nil {
			return err
		}
		result = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		w.log.WarnObj("operation failed; retrying", "retry", map[string]any{
			"operation":   name,
			"attempt":     attempt,
			"max_retries": maxRetries,
			"wait_ms":     wait.Milliseconds(),
			"error":       err.Error(),
		})
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		w.log.ErrorObj("operation failed after retries", "retry_exhausted", map[string]any{
			"operation": name,
			"attempts":  attempt,
			"error":     err.Error(),
		})
		var zero T
		return zero, fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
	}
	return result, nil
}

type outcome[T any] struct {
	v   T
	err error
}

// runAttempt races op against timeout. On timeout the attempt context is
// cancelled and the wrapper stops waiting; op is expected to return soon after.
func runAttempt[T any](ctx context.Context, name string, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome[T]{err: fmt.Errorf("%s panicked: %v", name, r)}
			}
		}()
		v, err := op(attemptCtx)
		done <- outcome[T]{v: v, err: err}
	}()

	select {
	case out := <-done:
		return out.v, out.err
	case <-attemptCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, fmt.Errorf("%s: %w after %s", name, ErrTimeout, timeout)
	}
}
