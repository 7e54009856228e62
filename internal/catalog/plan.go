package catalog

import (
	"fmt"
	"time"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/seeding"
)

// Phase is a group of categories that run back to back.
type Phase struct {
	Name string
	Jobs []seeding.Job
}

// Plan builds the enabled jobs of every phase in dependency order. Phases
// left without jobs are dropped.
func Plan(mode domain.Mode, ov Overrides, f Fetcher, env *Env) ([]Phase, error) {
	byPhase := make(map[string][]seeding.Job, len(PhaseOrder))
	for _, c := range Categories() {
		cfg, enabled, err := configFor(c, mode, ov)
		if err != nil {
			return nil, err
		}
		if !enabled {
			continue
		}
		byPhase[c.Phase] = append(byPhase[c.Phase], c.Job(cfg, f, env))
	}

	phases := make([]Phase, 0, len(PhaseOrder))
	for _, name := range PhaseOrder {
		if jobs := byPhase[name]; len(jobs) > 0 {
			phases = append(phases, Phase{Name: name, Jobs: jobs})
		}
	}
	return phases, nil
}

func configFor(c Category, mode domain.Mode, ov Overrides) (domain.CategoryConfig, bool, error) {
	o, ok := ov.Lookup(c.Name)
	if ok && o.Mode != "" {
		m, err := domain.ParseMode(o.Mode)
		if err != nil {
			return domain.CategoryConfig{}, false, fmt.Errorf("category %s: %w", c.Name, err)
		}
		mode = m
	}

	cfg := domain.NewCategoryConfig(c.Endpoint, mode).Named(c.Name)
	if !ok {
		return cfg, true, nil
	}
	if o.BatchSize > 0 {
		cfg.BatchSize = o.BatchSize
	}
	if o.ProgressLogInterval > 0 {
		cfg.ProgressLogInterval = o.ProgressLogInterval
	}
	if o.TimeoutMinutes > 0 {
		cfg.Timeout = time.Duration(o.TimeoutMinutes) * time.Minute
	}
	if o.MaxRetries != nil {
		cfg.MaxRetries = *o.MaxRetries
	}
	enabled := o.Enabled == nil || *o.Enabled
	return cfg, enabled, cfg.Validate()
}
