package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/pokedex-seeder/internal/cache"
	"github.com/samvad-hq/pokedex-seeder/internal/catalog"
	"github.com/samvad-hq/pokedex-seeder/internal/config"
	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/ledger"
	"github.com/samvad-hq/pokedex-seeder/internal/logger"
	"github.com/samvad-hq/pokedex-seeder/internal/memory"
	"github.com/samvad-hq/pokedex-seeder/internal/resilience"
	"github.com/samvad-hq/pokedex-seeder/internal/resource"
	"github.com/samvad-hq/pokedex-seeder/internal/seeding"
	"github.com/samvad-hq/pokedex-seeder/internal/storage"
	"github.com/samvad-hq/pokedex-seeder/pkg/httpclient"
	"github.com/samvad-hq/pokedex-seeder/pkg/publishers"
	"github.com/samvad-hq/pokedex-seeder/pkg/transport"
)

const reportTimeout = 10 * time.Second

// Components are the collaborators of a Seeder. NewSeeder builds them from
// config; tests assemble them directly.
type Components struct {
	Store      storage.Store
	Caches     *cache.Run
	Ledger     *ledger.Ledger
	Engine     *seeding.Engine
	Phases     []catalog.Phase
	Reports    *publishers.Fanout
	PhaseDelay time.Duration
	// Sleep waits between phases; nil uses resource.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Seeder runs every phase of a seeding run once and tears the run down.
type Seeder struct {
	store      storage.Store
	caches     *cache.Run
	ledger     *ledger.Ledger
	engine     *seeding.Engine
	phases     []catalog.Phase
	reports    *publishers.Fanout
	phaseDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	log        logger.Logger
}

// NewSeeder builds the seeding runtime from config.
func NewSeeder(ctx context.Context, cfg *config.Config, log logger.Logger) (*Seeder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	overrides := catalog.Overrides{}
	if cfg.CategoriesFile != "" {
		ov, err := catalog.LoadOverrides(cfg.CategoriesFile)
		if err != nil {
			return nil, fmt.Errorf("load categories file: %w", err)
		}
		overrides = ov
		log.InfoObj("category overrides loaded", "categories_meta", map[string]any{
			"file":  cfg.CategoriesFile,
			"count": len(ov.Categories),
		})
	}

	caches := cache.NewRun()
	led := ledger.New()
	monitor := memory.NewMonitor(memory.Options{Threshold: cfg.MemoryThresholdBytes()}, log, caches.Clearers()...)

	transports := newTransports(cfg, nil)
	client := resource.NewClient(resource.Options{
		BaseURL:    cfg.APIBaseURL,
		Policies:   resource.DefaultPolicies(cfg.CallMaxRetries),
		PremiumRPS: cfg.PremiumMaxRPS,
	}, transports, caches.Responses, led, log)

	engine, err := seeding.New(seeding.Options{
		Lister:    client,
		Ledger:    led,
		Processed: caches.Processed,
		Memory:    monitor,
		Retry:     resilience.New(resilience.DefaultStep, monitor, log),
		Ready: func(mode domain.Mode) error {
			tr, err := transports.TransportFor(mode)
			if err != nil {
				return err
			}
			return tr.Ready()
		},
		MemoryCheckEvery: cfg.MemoryCheckEvery,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init seeding engine: %w", err)
	}

	store, err := storage.NewStore(ctx, cfg.StoreType, storage.Options{
		SQLitePath:  cfg.SQLitePath,
		PostgresDSN: cfg.PostgresDSN,
		BoltPath:    cfg.BBoltPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StoreType,
	})

	env := &catalog.Env{Store: store, Caches: caches, Log: log}
	phases, err := catalog.Plan(cfg.Mode, overrides, client, env)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("plan phases: %w", err)
	}

	reports, err := loadReports(ctx, cfg.ReportsFile, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return NewSeederFrom(Components{
		Store:      store,
		Caches:     caches,
		Ledger:     led,
		Engine:     engine,
		Phases:     phases,
		Reports:    reports,
		PhaseDelay: cfg.PhaseDelay,
	}, log), nil
}

func loadReports(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	if path == "" {
		return publishers.NewFanout(), nil
	}
	sinks, err := publishers.LoadSinks(path)
	if err != nil {
		return nil, fmt.Errorf("load reports file: %w", err)
	}
	fanout, err := publishers.DefaultBuilders().Build(ctx, sinks, log)
	if err != nil {
		return nil, fmt.Errorf("build report sinks: %w", err)
	}
	loaded := make([]map[string]any, 0, len(sinks))
	for _, sink := range sinks {
		loaded = append(loaded, map[string]any{"id": sink.ID, "type": sink.Type, "events": sink.Events})
	}
	log.InfoObj("report sinks loaded", "reports_meta", map[string]any{
		"count": len(loaded),
		"sinks": loaded,
	})
	return fanout, nil
}

// NewSeederFrom assembles a Seeder from prepared components.
func NewSeederFrom(c Components, log logger.Logger) *Seeder {
	if c.Caches == nil {
		c.Caches = cache.NewRun()
	}
	if c.Sleep == nil {
		c.Sleep = resource.Sleep
	}
	if c.Reports == nil {
		c.Reports = publishers.NewFanout()
	}
	return &Seeder{
		store:      c.Store,
		caches:     c.Caches,
		ledger:     c.Ledger,
		engine:     c.Engine,
		phases:     c.Phases,
		reports:    c.Reports,
		phaseDelay: c.PhaseDelay,
		sleep:      c.Sleep,
		log:        logger.Ensure(log),
	}
}

// Run executes every phase in order. The first category error aborts the run.
// Teardown always runs; a re-run resumes from what was persisted.
func (s *Seeder) Run(ctx context.Context) (err error) {
	if s == nil || s.engine == nil || s.ledger == nil {
		return fmt.Errorf("seeder is not initialized")
	}
	s.ledger.StartRun()
	start := time.Now()
	defer func() { s.teardown(ctx, start, err) }()

	jobs := 0
	for _, p := range s.phases {
		jobs += len(p.Jobs)
	}
	s.log.InfoObj("seeding run starting", "run_meta", map[string]any{
		"run_id":      s.ledger.Stats().RunID,
		"phases":      len(s.phases),
		"categories":  jobs,
		"phase_delay": s.phaseDelay.String(),
	})

	for i, phase := range s.phases {
		if i > 0 && s.phaseDelay > 0 {
			if err := s.sleep(ctx, s.phaseDelay); err != nil {
				return err
			}
		}
		if err := s.runPhase(ctx, i+1, phase); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) runPhase(ctx context.Context, n int, phase catalog.Phase) error {
	started := time.Now()
	names := make([]string, 0, len(phase.Jobs))
	for _, j := range phase.Jobs {
		names = append(names, j.Name())
	}
	s.log.InfoObj("phase started", "phase_meta", map[string]any{
		"phase":      phase.Name,
		"number":     n,
		"categories": names,
	})

	for _, job := range phase.Jobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.runJob(ctx, job)
		s.reportCategory(ctx, job.Name(), err)
		if err != nil {
			s.log.ErrorObj("category failed; aborting run", "category_fatal", map[string]any{
				"phase":    phase.Name,
				"category": job.Name(),
				"error":    err.Error(),
			})
			return fmt.Errorf("phase %s: %w", phase.Name, err)
		}
	}

	s.log.InfoObj("phase completed", "phase_meta", map[string]any{
		"phase":       phase.Name,
		"number":      n,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	return nil
}

// runJob converts a panic escaping a category into a recorded error.
func (s *Seeder) runJob(ctx context.Context, job seeding.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("category %s panicked: %v", job.Name(), r)
			s.ledger.RecordError(job.Config.Endpoint, err)
		}
	}()
	return job.Run(ctx, s.engine)
}

func (s *Seeder) reportCategory(ctx context.Context, category string, runErr error) {
	if s.reports.Size() == 0 {
		return
	}
	prog, _ := s.ledger.Progress(category)
	s.publish(ctx, publishers.NewCategoryEvent(s.ledger.Stats().RunID, category, prog, runErr))
}

func (s *Seeder) publish(ctx context.Context, evt publishers.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	d, err := s.reports.Publish(pubCtx, evt)
	if err != nil {
		s.log.WarnObj("run report not delivered", "report_error", map[string]any{
			"report": evt.Key(),
			"sent":   d.Sent,
			"failed": d.Failed,
			"error":  err.Error(),
		})
	}
}

// teardown reports the run, clears caches and closes the store.
func (s *Seeder) teardown(ctx context.Context, start time.Time, runErr error) {
	stats := s.ledger.Stats()
	summary := s.ledger.Summary()

	if runErr != nil {
		if !errors.Is(runErr, context.Canceled) {
			s.ledger.RecordError("", runErr)
			stats = s.ledger.Stats()
		}
		s.log.ErrorObj("seeding run failed", "run_error", map[string]any{
			"run_id": stats.RunID,
			"error":  runErr.Error(),
		})
	}
	s.log.InfoObj("seeding progress", "progress_summary", summary)
	s.log.InfoObj("seeding run finished", "run_stats", map[string]any{
		"run_id":          stats.RunID,
		"total_requests":  stats.TotalRequests,
		"failed_requests": stats.FailedRequests,
		"errors":          len(stats.Errors),
		"top_error_urls":  s.ledger.ErrorCountsByURL(5),
		"duration_ms":     time.Since(start).Milliseconds(),
	})

	if s.reports.Size() > 0 {
		s.publish(ctx, publishers.NewRunEvent(stats, summary, runErr))
	}
	if err := s.reports.Close(); err != nil {
		s.log.WarnObj("report sinks close failed", "report_error", err.Error())
	}

	s.log.DebugObj("run caches cleared", "cache_cleanup", s.caches.ClearAll())
	s.closeStore()
}

// closeStore safely closes the storage backend, logging any errors encountered.
func (s *Seeder) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		s.log.ErrorObj("storage close failed", "error", err)
	}
}

// Ledger exposes the run ledger.
func (s *Seeder) Ledger() *ledger.Ledger { return s.ledger }

// newTransports builds the per-mode transports from cfg. A nil factory gives
// the premium transport its resty client.
func newTransports(cfg *config.Config, premiumFactory transport.ClientFactory) transport.Registry {
	return transport.NewRegistry(
		transport.NewStandard(cfg.StandardProxyBase, httpclient.NewRestyClient(cfg.HTTPTimeout)),
		transport.NewPremium(transport.ProxyConfig{
			Host:     cfg.PremiumProxyHost,
			Port:     cfg.PremiumProxyPort,
			Username: cfg.PremiumProxyUsername,
			Password: cfg.PremiumProxyPassword,
		}, cfg.PremiumTimeout, premiumFactory),
	)
}
