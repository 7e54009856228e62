// Package storage persists seeded entities and their sub-records. Every write
// is an upsert so any run can be repeated safely.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

// ErrNotFound is returned when a resource row does not exist.
var ErrNotFound = errors.New("resource not found")

// Store is the persisted entity store.
type Store interface {
	// UpsertResource inserts or updates a row and reports whether it was created.
	UpsertResource(ctx context.Context, r domain.Resource) (bool, error)
	Resource(ctx context.Context, table string, id int) (domain.Resource, error)
	// UpsertSubRecords upserts records and marks kind as seeded for the
	// resource in one transaction. An empty slice still marks the kind.
	UpsertSubRecords(ctx context.Context, table string, id int, kind string, records []domain.SubRecord) error
	SubRecords(ctx context.Context, table string, id int, kind string) ([]domain.SubRecord, error)
	// SeededKinds returns the sorted kinds already seeded for a resource.
	SeededKinds(ctx context.Context, table string, id int) ([]string, error)
	// CompleteIDs returns ids of rows in table that have every required kind.
	CompleteIDs(ctx context.Context, table string, required []string) (map[int]struct{}, error)
	CountResources(ctx context.Context, table string) (int, error)
	Close() error
}

// Options carries backend locations.
type Options struct {
	SQLitePath  string
	PostgresDSN string
	BoltPath    string
}

// NewStore creates the configured storage backend.
func NewStore(ctx context.Context, typ string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))

	switch typ {
	case "", "sqlite":
		if strings.TrimSpace(opts.SQLitePath) == "" {
			return nil, fmt.Errorf("sqlite storage requires a path")
		}
		return openSQLite(ctx, opts.SQLitePath)
	case "postgres", "postgresql":
		if strings.TrimSpace(opts.PostgresDSN) == "" {
			return nil, fmt.Errorf("postgres storage requires a dsn")
		}
		return openPostgres(ctx, opts.PostgresDSN)
	case "bbolt":
		if strings.TrimSpace(opts.BoltPath) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(opts.BoltPath)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func validateRecords(table string, id int, kind string, records []domain.SubRecord) error {
	if table == "" || id <= 0 || kind == "" {
		return fmt.Errorf("invalid sub-record target %s/%d/%s", table, id, kind)
	}
	for _, rec := range records {
		if rec.Key == "" {
			return fmt.Errorf("sub-record of %s/%d/%s has empty key", table, id, kind)
		}
	}
	return nil
}

func uniqueSorted(kinds []string) []string {
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
