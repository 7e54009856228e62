package memory

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/samvad-hq/pokedex-seeder/internal/cache"
	"github.com/samvad-hq/pokedex-seeder/internal/logger"
)

const (
	DefaultThreshold = 800 * 1024 * 1024
	defaultSettle    = time.Second
)

// Sampler reports the resident set size of the process in bytes.
type Sampler func() (uint64, error)

// Options tune a Monitor. Zero values fall back to defaults.
type Options struct {
	Threshold uint64
	Settle    time.Duration
	Sampler   Sampler
	// Collect requests a garbage collection. Nil uses runtime.GC plus
	// debug.FreeOSMemory.
	Collect func()
}

// Monitor drops run caches when the process grows past a threshold.
type Monitor struct {
	threshold uint64
	settle    time.Duration
	sample    Sampler
	collect   func()
	caches    []cache.Clearer
	running   atomic.Bool
	cleanups  atomic.Int64
	log       logger.Logger
}

// NewMonitor builds a monitor owning the given caches.
func NewMonitor(opts Options, log logger.Logger, caches ...cache.Clearer) *Monitor {
	if opts.Threshold == 0 {
		opts.Threshold = DefaultThreshold
	}
	if opts.Settle < 0 {
		opts.Settle = 0
	} else if opts.Settle == 0 {
		opts.Settle = defaultSettle
	}
	if opts.Sampler == nil {
		opts.Sampler = ProcessRSS
	}
	if opts.Collect == nil {
		opts.Collect = func() {
			runtime.GC()
			debug.FreeOSMemory()
		}
	}
	return &Monitor{
		threshold: opts.Threshold,
		settle:    opts.Settle,
		sample:    opts.Sampler,
		collect:   opts.Collect,
		caches:    caches,
		log:       logger.Ensure(log),
	}
}

// ProcessRSS samples the current process with gopsutil.
func ProcessRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, fmt.Errorf("open process: %w", err)
	}
	info, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("read memory info: %w", err)
	}
	return info.RSS, nil
}

// CheckAndCleanup clears caches when RSS is above the threshold and no other
// cleanup is in flight. It reports whether a cleanup ran. Safe to call often.
func (m *Monitor) CheckAndCleanup(ctx context.Context, label string) bool {
	if m == nil {
		return false
	}
	rss, err := m.sample()
	if err != nil {
		m.log.WarnObj("memory sample failed", "memory_error", map[string]any{
			"context": label,
			"error":   err.Error(),
		})
		return false
	}
	if rss <= m.threshold {
		return false
	}
	if !m.running.CompareAndSwap(false, true) {
		return false
	}
	defer m.running.Store(false)

	removed := make(map[string]int, len(m.caches))
	for _, c := range m.caches {
		removed[c.Name()] = c.Clear()
	}
	m.collect()
	m.cleanups.Add(1)

	m.log.WarnObj("memory threshold exceeded; caches cleared", "memory_cleanup", map[string]any{
		"context":         label,
		"rss_mb":          rss / (1024 * 1024),
		"threshold_mb":    m.threshold / (1024 * 1024),
		"entries_removed": removed,
	})

	if m.settle > 0 {
		timer := time.NewTimer(m.settle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
	return true
}

// Cleanups returns how many cleanups have run.
func (m *Monitor) Cleanups() int64 {
	if m == nil {
		return 0
	}
	return m.cleanups.Load()
}
