package seeding

import (
	"context"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

// Job is a category config bound to its processor, with the result type
// erased so phases can hold heterogeneous categories.
type Job struct {
	Config domain.CategoryConfig
	run    func(ctx context.Context, e *Engine) error
}

// NewJob binds cfg to p.
func NewJob[R any](cfg domain.CategoryConfig, p Processor[R]) Job {
	return Job{
		Config: cfg,
		run: func(ctx context.Context, e *Engine) error {
			return Seed(ctx, e, cfg, p)
		},
	}
}

// Name is the category name.
func (j Job) Name() string { return j.Config.Category }

// Run seeds the category on e.
func (j Job) Run(ctx context.Context, e *Engine) error {
	return j.run(ctx, e)
}
