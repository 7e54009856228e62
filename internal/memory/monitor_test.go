package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samvad-hq/pokedex-seeder/internal/cache"
)

func fixedSampler(v uint64) Sampler {
	return func() (uint64, error) { return v, nil }
}

func TestCheckAndCleanupBelowThresholdIsNoop(t *testing.T) {
	run := cache.NewRun()
	run.Responses.Put("u", []byte("x"))
	var collected atomic.Int32

	m := NewMonitor(Options{
		Threshold: 100,
		Settle:    -1,
		Sampler:   fixedSampler(50),
		Collect:   func() { collected.Add(1) },
	}, nil, run.Clearers()...)

	if m.CheckAndCleanup(context.Background(), "test") {
		t.Fatalf("expected no cleanup below threshold")
	}
	if run.Responses.Len() != 1 || collected.Load() != 0 {
		t.Fatalf("cache or gc touched below threshold")
	}
}

func TestCheckAndCleanupClearsCaches(t *testing.T) {
	run := cache.NewRun()
	run.Responses.Put("u", []byte("x"))
	run.Processed.Add("moves u")
	run.EvolutionChain.Set(1, 2)
	var collected atomic.Int32

	m := NewMonitor(Options{
		Threshold: 100,
		Settle:    -1,
		Sampler:   fixedSampler(500),
		Collect:   func() { collected.Add(1) },
	}, nil, run.Clearers()...)

	if !m.CheckAndCleanup(context.Background(), "test") {
		t.Fatalf("expected cleanup above threshold")
	}
	if run.Responses.Len() != 0 || run.Processed.Len() != 0 || run.EvolutionChain.Len() != 0 {
		t.Fatalf("caches not cleared")
	}
	if collected.Load() != 1 || m.Cleanups() != 1 {
		t.Fatalf("collect=%d cleanups=%d", collected.Load(), m.Cleanups())
	}
}

func TestCheckAndCleanupReentrancyGuard(t *testing.T) {
	run := cache.NewRun()
	entered := make(chan struct{})
	release := make(chan struct{})
	var collected atomic.Int32

	m := NewMonitor(Options{
		Threshold: 100,
		Settle:    -1,
		Sampler:   fixedSampler(500),
		Collect: func() {
			collected.Add(1)
			close(entered)
			<-release
		},
	}, nil, run.Clearers()...)

	var wg sync.WaitGroup
	first := make(chan bool, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first <- m.CheckAndCleanup(context.Background(), "first")
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("first cleanup never started")
	}

	if m.CheckAndCleanup(context.Background(), "second") {
		t.Fatalf("second concurrent cleanup must be skipped")
	}

	close(release)
	wg.Wait()
	if !<-first {
		t.Fatalf("first cleanup should report true")
	}
	if collected.Load() != 1 {
		t.Fatalf("collect ran %d times, want 1", collected.Load())
	}
}

func TestSettleHonoursContext(t *testing.T) {
	m := NewMonitor(Options{
		Threshold: 1,
		Settle:    time.Hour,
		Sampler:   fixedSampler(5),
		Collect:   func() {},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		m.CheckAndCleanup(ctx, "cancelled")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("settle did not honour cancelled context")
	}
}
