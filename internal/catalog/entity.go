// Package catalog declares every upstream category and the generic processor
// that seeds one entity with its sub-records.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samvad-hq/pokedex-seeder/internal/cache"
	"github.com/samvad-hq/pokedex-seeder/internal/domain"
	"github.com/samvad-hq/pokedex-seeder/internal/logger"
	"github.com/samvad-hq/pokedex-seeder/internal/storage"
)

// Document is a decoded upstream document that knows its own identity.
type Document interface {
	Identity() (int, string)
}

// Fetcher decodes and validates one upstream document.
type Fetcher interface {
	FetchInto(ctx context.Context, url string, mode domain.Mode, dst any) error
}

// Env is what processors and post-process hooks may touch.
type Env struct {
	Store  storage.Store
	Caches *cache.Run
	Log    logger.Logger
}

func (e *Env) log() logger.Logger { return logger.Ensure(e.Log) }

// KindExtractor derives the records of one sub-resource kind from a document.
type KindExtractor[D Document] struct {
	Kind    string
	Extract func(D) []domain.SubRecord
}

// EntitySpec describes how one category maps onto storage.
type EntitySpec[D Document] struct {
	Category string
	Endpoint string
	Table    string
	// Required kinds must all be seeded for a row to count as complete.
	Required []string
	Kinds    []KindExtractor[D]
	// AttachOnly decorates rows owned by another category and never creates them.
	AttachOnly bool
	Post       func(ctx context.Context, env *Env, docs []D) error
	// PostKinds are written by Post rather than by an extractor. A row missing
	// one is not complete and its document is handed to Post again.
	PostKinds []string
}

// EntityProcessor seeds one entity per listed reference: a missing row is
// created with every kind, an existing row only gets the kinds it lacks.
type EntityProcessor[D Document] struct {
	spec  EntitySpec[D]
	fetch Fetcher
	env   *Env
	log   logger.Logger
}

// NewEntityProcessor binds spec to its dependencies.
func NewEntityProcessor[D Document](spec EntitySpec[D], fetch Fetcher, env *Env) *EntityProcessor[D] {
	return &EntityProcessor[D]{spec: spec, fetch: fetch, env: env, log: env.log()}
}

// ExistingIDs lists rows that already carry every required kind, including
// the kinds written by post-processing.
func (p *EntityProcessor[D]) ExistingIDs(ctx context.Context) (map[int]struct{}, error) {
	required := append(append([]string(nil), p.spec.Required...), p.spec.PostKinds...)
	return p.env.Store.CompleteIDs(ctx, p.spec.Table, required)
}

// state is what storage already holds for one id.
type state struct {
	exists bool
	seeded map[string]bool
}

func (p *EntityProcessor[D]) load(ctx context.Context, id int) (state, error) {
	var st state
	if _, err := p.env.Store.Resource(ctx, p.spec.Table, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return st, nil
		}
		return st, err
	}
	st.exists = true
	kinds, err := p.env.Store.SeededKinds(ctx, p.spec.Table, id)
	if err != nil {
		return st, err
	}
	st.seeded = make(map[string]bool, len(kinds))
	for _, k := range kinds {
		st.seeded[k] = true
	}
	return st, nil
}

func (p *EntityProcessor[D]) complete(st state) bool {
	if !st.exists {
		return false
	}
	for _, k := range p.spec.Kinds {
		if !st.seeded[k.Kind] {
			return false
		}
	}
	for _, k := range p.spec.PostKinds {
		if !st.seeded[k] {
			return false
		}
	}
	return true
}

// ProcessItem implements seeding.Processor.
func (p *EntityProcessor[D]) ProcessItem(ctx context.Context, ref domain.NamedResourceRef, mode domain.Mode) (*D, error) {
	var (
		st     state
		loaded bool
	)
	if id, err := ref.ID(); err == nil {
		if st, err = p.load(ctx, id); err != nil {
			return nil, fmt.Errorf("load %s/%d: %w", p.spec.Table, id, err)
		}
		loaded = true
		if p.complete(st) {
			return nil, nil
		}
		if p.spec.AttachOnly && !st.exists {
			p.log.DebugObj("owner row missing; nothing to attach", "attach_skip", map[string]any{
				"category": p.spec.Category,
				"table":    p.spec.Table,
				"id":       id,
			})
			return nil, nil
		}
	}

	var doc D
	if err := p.fetch.FetchInto(ctx, ref.URL, mode, &doc); err != nil {
		return nil, err
	}
	id, name := doc.Identity()
	if id <= 0 {
		return nil, fmt.Errorf("%s document %s has no id", p.spec.Category, ref.URL)
	}
	if !loaded {
		var err error
		if st, err = p.load(ctx, id); err != nil {
			return nil, fmt.Errorf("load %s/%d: %w", p.spec.Table, id, err)
		}
		if p.spec.AttachOnly && !st.exists {
			return nil, nil
		}
	}

	if !st.exists {
		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode %s/%d: %w", p.spec.Table, id, err)
		}
		if name == "" {
			name = ref.Name
		}
		if _, err := p.env.Store.UpsertResource(ctx, domain.Resource{Table: p.spec.Table, ID: id, Name: name, Payload: payload}); err != nil {
			return nil, err
		}
	}

	for _, k := range p.spec.Kinds {
		if st.seeded[k.Kind] {
			continue
		}
		if err := p.env.Store.UpsertSubRecords(ctx, p.spec.Table, id, k.Kind, k.Extract(doc)); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

// PostProcess implements seeding.PostProcessor. Specs without a hook are a no-op.
func (p *EntityProcessor[D]) PostProcess(ctx context.Context, docs []D) error {
	if p.spec.Post == nil {
		return nil
	}
	return p.spec.Post(ctx, p.env, docs)
}
