// Package seeding runs one category through list, diff, process and
// post-process steps. Concrete categories only describe how a single item is
// fetched and persisted.
package seeding

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/samvad-hq/pokedex-seeder/internal/cache"
	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/ledger"
	"github.com/samvad-hq/pokedex-seeder/internal/logger"
	"github.com/samvad-hq/pokedex-seeder/internal/resilience"
	"github.com/samvad-hq/pokedex-seeder/internal/resource"
)

// DefaultMemoryCheckEvery is how many processed items pass between memory checks.
const DefaultMemoryCheckEvery = 50

// Processor handles one listed item. A nil result with a nil error means the
// item was handled but produced nothing for post-processing.
type Processor[R any] interface {
	ProcessItem(ctx context.Context, ref domain.NamedResourceRef, mode domain.Mode) (*R, error)
}

// ExistingIDsLister is implemented by processors that can report which ids
// are already fully seeded.
type ExistingIDsLister interface {
	ExistingIDs(ctx context.Context) (map[int]struct{}, error)
}

// PostProcessor is implemented by processors that need a pass over every
// successful result of a run.
type PostProcessor[R any] interface {
	PostProcess(ctx context.Context, results []R) error
}

// Lister enumerates a list endpoint.
type Lister interface {
	FetchAllFromEndpoint(ctx context.Context, endpoint string, mode domain.Mode, opts resource.PageOptions) ([]domain.NamedResourceRef, error)
}

// Options wire an Engine.
type Options struct {
	Lister    Lister
	Ledger    *ledger.Ledger
	Processed *cache.URLSet
	Memory    resilience.Cleaner
	Retry     *resilience.Wrapper
	// Ready is consulted before a category starts; its error is fatal and
	// never retried.
	Ready            func(mode domain.Mode) error
	PageOptions      resource.PageOptions
	MemoryCheckEvery int
}

// Engine is shared by every category of a run.
type Engine struct {
	lister           Lister
	ledger           *ledger.Ledger
	processed        *cache.URLSet
	memory           resilience.Cleaner
	retry            *resilience.Wrapper
	ready            func(mode domain.Mode) error
	pageOpts         resource.PageOptions
	memoryCheckEvery int
	log              logger.Logger
}

// New builds an Engine. Lister and Ledger are required.
func New(opts Options, log logger.Logger) (*Engine, error) {
	if opts.Lister == nil {
		return nil, fmt.Errorf("seeding engine requires a lister")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("seeding engine requires a ledger")
	}
	if opts.Processed == nil {
		opts.Processed = cache.NewURLSet()
	}
	if opts.Retry == nil {
		opts.Retry = resilience.New(resilience.DefaultStep, opts.Memory, log)
	}
	if opts.MemoryCheckEvery <= 0 {
		opts.MemoryCheckEvery = DefaultMemoryCheckEvery
	}
	return &Engine{
		lister:           opts.Lister,
		ledger:           opts.Ledger,
		processed:        opts.Processed,
		memory:           opts.Memory,
		retry:            opts.Retry,
		ready:            opts.Ready,
		pageOpts:         opts.PageOptions,
		memoryCheckEvery: opts.MemoryCheckEvery,
		log:              logger.Ensure(log),
	}, nil
}

// Ledger exposes the run ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// Seed runs a category under the category-level timeout and retry policy.
func Seed[R any](ctx context.Context, e *Engine, cfg domain.CategoryConfig, p Processor[R]) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if e.ready != nil {
		if err := e.ready(cfg.Mode); err != nil {
			e.ledger.RecordError(cfg.Endpoint, err)
			return fmt.Errorf("category %s: %w", cfg.Category, err)
		}
	}
	// items counted by an earlier attempt are not counted again when a retry
	// has to revisit them for post-processing
	counted := cache.NewURLSet()
	return e.retry.Do(ctx, "seed "+cfg.Category, cfg.Timeout, cfg.MaxRetries, func(ctx context.Context) error {
		return seedCore(ctx, e, cfg, p, counted)
	})
}

func processedKey(category, url string) string { return category + " " + url }

// seedCore is one attempt at a category. An item is marked processed once
// nothing is left to do for it: right after ProcessItem when the processor
// has no post-process step or the item produced no result, otherwise only
// after PostProcess succeeded.
func seedCore[R any](ctx context.Context, e *Engine, cfg domain.CategoryConfig, p Processor[R], counted *cache.URLSet) error {
	started := time.Now()

	refs, err := e.lister.FetchAllFromEndpoint(ctx, cfg.Endpoint, cfg.Mode, e.pageOpts)
	if err != nil {
		return fmt.Errorf("list %s: %w", cfg.Category, err)
	}
	total := len(refs)

	pending, err := e.diff(ctx, cfg, refs, p)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		e.ledger.Complete(cfg.Category, &total)
		e.log.InfoObj("category already seeded", "category_skip", map[string]any{
			"category": cfg.Category,
			"total":    total,
		})
		return nil
	}

	e.ledger.Begin(cfg.Category, total)
	e.log.InfoObj("category started", "category_start", map[string]any{
		"category": cfg.Category,
		"mode":     string(cfg.Mode),
		"total":    total,
		"pending":  len(pending),
		"batch":    cfg.BatchSize,
	})

	post, hasPost := any(p).(PostProcessor[R])
	run := itemRun{counted: counted, deferMark: hasPost}
	results, err := runItems(ctx, e, cfg, p, pending, run)
	if err != nil {
		return err
	}

	if hasPost && len(results) > 0 {
		values := make([]R, len(results))
		for i, r := range results {
			values[i] = r.value
		}
		if err := post.PostProcess(ctx, values); err != nil {
			return fmt.Errorf("post-process %s: %w", cfg.Category, err)
		}
		for _, r := range results {
			e.processed.Add(processedKey(cfg.Category, r.url))
		}
	}

	e.ledger.Complete(cfg.Category, &total)
	prog, _ := e.ledger.Progress(cfg.Category)
	e.log.InfoObj("category completed", "category_summary", map[string]any{
		"category":    cfg.Category,
		"count":       prog.Count,
		"failed":      prog.Failed,
		"total":       total,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

func (e *Engine) diff(ctx context.Context, cfg domain.CategoryConfig, refs []domain.NamedResourceRef, p any) ([]domain.NamedResourceRef, error) {
	var existing map[int]struct{}
	if lister, ok := p.(ExistingIDsLister); ok {
		ids, err := lister.ExistingIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("existing ids of %s: %w", cfg.Category, err)
		}
		existing = ids
	}

	pending := make([]domain.NamedResourceRef, 0, len(refs))
	for _, ref := range refs {
		if e.processed.Has(processedKey(cfg.Category, ref.URL)) {
			continue
		}
		if id, err := ref.ID(); err == nil {
			if _, done := existing[id]; done {
				continue
			}
		}
		pending = append(pending, ref)
	}
	return pending, nil
}

// itemRun carries the per-category bookkeeping of one attempt.
type itemRun struct {
	counted *cache.URLSet
	// deferMark leaves items with a result unmarked until post-processing.
	deferMark bool
}

type collected[R any] struct {
	url   string
	value R
}

// runItems processes pending refs and returns the non-nil results in
// listing order.
func runItems[R any](ctx context.Context, e *Engine, cfg domain.CategoryConfig, p Processor[R], pending []domain.NamedResourceRef, run itemRun) ([]collected[R], error) {
	slots := make([]*R, len(pending))
	batch := cfg.BatchSize
	if cfg.Mode != domain.ModePremium {
		batch = 1
	}

	done := 0
	for start := 0; start < len(pending); start += batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+batch, len(pending))

		if end-start == 1 {
			slots[start] = processOne(ctx, e, cfg, p, pending[start], run)
		} else {
			var g errgroup.Group
			for i := start; i < end; i++ {
				g.Go(func() error {
					slots[i] = processOne(ctx, e, cfg, p, pending[i], run)
					return nil
				})
			}
			_ = g.Wait()
		}

		for i := start; i < end; i++ {
			done++
			if cfg.ProgressLogInterval > 0 && done%cfg.ProgressLogInterval == 0 {
				prog, _ := e.ledger.Progress(cfg.Category)
				e.log.InfoObj("category progress", "category_progress", map[string]any{
					"category":  cfg.Category,
					"processed": done,
					"pending":   len(pending),
					"count":     prog.Count,
					"failed":    prog.Failed,
				})
			}
			if e.memory != nil && done%e.memoryCheckEvery == 0 {
				e.memory.CheckAndCleanup(ctx, cfg.Category)
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]collected[R], 0, len(slots))
	for i, r := range slots {
		if r != nil {
			results = append(results, collected[R]{url: pending[i].URL, value: *r})
		}
	}
	return results, nil
}

// processOne isolates a single item: errors and panics are counted and
// logged, never propagated.
func processOne[R any](ctx context.Context, e *Engine, cfg domain.CategoryConfig, p Processor[R], ref domain.NamedResourceRef, run itemRun) (out *R) {
	if ctx.Err() != nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			out = nil
			e.itemFailed(cfg, ref, fmt.Errorf("panic: %v", r))
		}
	}()

	res, err := p.ProcessItem(ctx, ref, cfg.Mode)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		e.itemFailed(cfg, ref, err)
		return nil
	}
	key := processedKey(cfg.Category, ref.URL)
	if run.counted == nil || !run.counted.Has(key) {
		e.ledger.Succeeded(cfg.Category)
		if run.counted != nil {
			run.counted.Add(key)
		}
	}
	if res == nil || !run.deferMark {
		e.processed.Add(key)
	}
	return res
}

func (e *Engine) itemFailed(cfg domain.CategoryConfig, ref domain.NamedResourceRef, err error) {
	e.ledger.Failed(cfg.Category)
	e.ledger.RecordError(ref.URL, err)
	e.log.WarnObj("item failed", "item_error", map[string]any{
		"category": cfg.Category,
		"item":     ref.Name,
		"url":      ref.URL,
		"error":    err.Error(),
	})
}
