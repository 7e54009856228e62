package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
)

type recordingLogger struct {
	mu    sync.Mutex
	warns []map[string]any
	errs  int
}

func (r *recordingLogger) InfoObj(string, string, interface{})  {}
func (r *recordingLogger) DebugObj(string, string, interface{}) {}
func (r *recordingLogger) WarnObj(_ string, _ string, obj interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := obj.(map[string]any); ok {
		r.warns = append(r.warns, m)
	}
}
func (r *recordingLogger) ErrorObj(string, string, interface{}) {
	r.mu.Lock()
	r.errs++
	r.mu.Unlock()
}

type countingCleaner struct{ calls atomic.Int32 }

func (c *countingCleaner) CheckAndCleanup(context.Context, string) bool {
	c.calls.Add(1)
	return false
}

func TestLinearBackOffSchedule(t *testing.T) {
	b := &LinearBackOff{Step: DefaultStep, MaxRetries: 2}
	if got := b.NextBackOff(); got != 5*time.Second {
		t.Fatalf("first wait = %v, want 5s", got)
	}
	if got := b.NextBackOff(); got != 10*time.Second {
		t.Fatalf("second wait = %v, want 10s", got)
	}
	if got := b.NextBackOff(); got != backoff.Stop {
		t.Fatalf("third wait = %v, want Stop", got)
	}
	b.Reset()
	if got := b.NextBackOff(); got != 5*time.Second {
		t.Fatalf("after reset wait = %v, want 5s", got)
	}
}

func TestDoRetriesWithLinearBackoffThenFails(t *testing.T) {
	const step = 20 * time.Millisecond
	log := &recordingLogger{}
	cleaner := &countingCleaner{}
	w := New(step, cleaner, log)

	var attempts atomic.Int32
	start := time.Now()
	err := w.Do(context.Background(), "always-fails", time.Second, 2, func(context.Context) error {
		attempts.Add(1)
		return errors.New("boom")
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected error after retries")
	}
	if attempts.Load() != 3 {
		t.Fatalf("attempts = %d, want 3", attempts.Load())
	}
	if elapsed < 3*step {
		t.Fatalf("elapsed %v, expected at least %v of backoff", elapsed, 3*step)
	}
	if len(log.warns) != 2 {
		t.Fatalf("expected 2 retry warnings, got %d", len(log.warns))
	}
	if log.warns[0]["wait_ms"] != step.Milliseconds() || log.warns[1]["wait_ms"] != 2*step.Milliseconds() {
		t.Fatalf("unexpected waits %v, %v", log.warns[0]["wait_ms"], log.warns[1]["wait_ms"])
	}
	if cleaner.calls.Load() != 2 {
		t.Fatalf("cleanup calls = %d, want 2 (one per retry)", cleaner.calls.Load())
	}
	if log.errs != 1 {
		t.Fatalf("expected one exhaustion log, got %d", log.errs)
	}
}

func TestDoSucceedsAfterTransientFailure(t *testing.T) {
	w := New(time.Millisecond, nil, nil)
	var attempts int
	got, err := DoValue(context.Background(), w, "flaky", time.Second, 3, func(context.Context) (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("DoValue = %q, %v", got, err)
	}
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

func TestDoTimesOutStuckOperation(t *testing.T) {
	w := New(time.Millisecond, nil, nil)
	var sawCancel atomic.Bool
	err := w.Do(context.Background(), "stuck", 20*time.Millisecond, 0, func(ctx context.Context) error {
		<-ctx.Done()
		sawCancel.Store(true)
		return ctx.Err()
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for !sawCancel.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if !sawCancel.Load() {
		t.Fatalf("stuck attempt never observed cancellation")
	}
}

func TestDoRecoversPanics(t *testing.T) {
	w := New(time.Millisecond, nil, nil)
	err := w.Do(context.Background(), "panics", time.Second, 0, func(context.Context) error {
		panic("kaboom")
	})
	if err == nil {
		t.Fatalf("expected panic to become an error")
	}
}

func TestDoStopsOnParentCancel(t *testing.T) {
	w := New(time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	var attempts atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- w.Do(ctx, "cancelled", time.Second, 5, func(context.Context) error {
			attempts.Add(1)
			return errors.New("fail")
		})
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected error")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Do did not stop after cancel")
	}
	if attempts.Load() != 1 {
		t.Fatalf("attempts = %d, want 1", attempts.Load())
	}
}
