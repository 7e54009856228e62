package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS resources (
    tbl        TEXT        NOT NULL,
    id         INTEGER     NOT NULL,
    name       TEXT        NOT NULL DEFAULT '',
    payload    JSONB       NOT NULL DEFAULT '{}'::jsonb,
    updated_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (tbl, id)
);
CREATE TABLE IF NOT EXISTS sub_records (
    tbl         TEXT    NOT NULL,
    resource_id INTEGER NOT NULL,
    kind        TEXT    NOT NULL,
    rec_key     TEXT    NOT NULL,
    value       TEXT    NOT NULL DEFAULT '',
    PRIMARY KEY (tbl, resource_id, kind, rec_key)
);
CREATE TABLE IF NOT EXISTS seeded_kinds (
    tbl         TEXT        NOT NULL,
    resource_id INTEGER     NOT NULL,
    kind        TEXT        NOT NULL,
    seeded_at   TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (tbl, resource_id, kind)
);
`

// postgresStore implements Store on PostgreSQL.
type postgresStore struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing db config: %w", err)
	}
	poolCfg.MaxConns = 10

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init postgres schema: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *postgresStore) UpsertResource(ctx context.Context, r domain.Resource) (bool, error) {
	if r.Table == "" || r.ID <= 0 {
		return false, fmt.Errorf("invalid resource key %s/%d", r.Table, r.ID)
	}
	payload := string(r.Payload)
	if payload == "" {
		payload = "{}"
	}

	// xmax is zero only for freshly inserted tuples
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO resources (tbl, id, name, payload, updated_at) VALUES ($1, $2, $3, $4::jsonb, $5)
		 ON CONFLICT (tbl, id) DO UPDATE SET name = EXCLUDED.name, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at
		 RETURNING (xmax = 0)`,
		r.Table, r.ID, r.Name, payload, time.Now().UTC(),
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert %s/%d: %w", r.Table, r.ID, err)
	}
	return created, nil
}

func (s *postgresStore) Resource(ctx context.Context, table string, id int) (domain.Resource, error) {
	r := domain.Resource{Table: table, ID: id}
	var payload string
	err := s.pool.QueryRow(ctx, `SELECT name, payload::text FROM resources WHERE tbl = $1 AND id = $2`, table, id).Scan(&r.Name, &payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Resource{}, ErrNotFound
	}
	if err != nil {
		return domain.Resource{}, fmt.Errorf("read %s/%d: %w", table, id, err)
	}
	r.Payload = []byte(payload)
	return r, nil
}

func (s *postgresStore) UpsertSubRecords(ctx context.Context, table string, id int, kind string, records []domain.SubRecord) error {
	if err := validateRecords(table, id, kind, records); err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, rec := range records {
			batch.Queue(
				`INSERT INTO sub_records (tbl, resource_id, kind, rec_key, value) VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (tbl, resource_id, kind, rec_key) DO UPDATE SET value = EXCLUDED.value`,
				table, id, kind, rec.Key, rec.Value)
		}
		batch.Queue(
			`INSERT INTO seeded_kinds (tbl, resource_id, kind, seeded_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (tbl, resource_id, kind) DO UPDATE SET seeded_at = EXCLUDED.seeded_at`,
			table, id, kind, time.Now().UTC())

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("upsert sub-records %s/%d/%s: %w", table, id, kind, err)
			}
		}
		return results.Close()
	})
}

func (s *postgresStore) SubRecords(ctx context.Context, table string, id int, kind string) ([]domain.SubRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT rec_key, value FROM sub_records WHERE tbl = $1 AND resource_id = $2 AND kind = $3 ORDER BY rec_key`,
		table, id, kind)
	if err != nil {
		return nil, fmt.Errorf("read sub-records %s/%d/%s: %w", table, id, kind, err)
	}
	defer rows.Close()

	var out []domain.SubRecord
	for rows.Next() {
		rec := domain.SubRecord{Table: table, ResourceID: id, Kind: kind}
		if err := rows.Scan(&rec.Key, &rec.Value); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *postgresStore) SeededKinds(ctx context.Context, table string, id int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind FROM seeded_kinds WHERE tbl = $1 AND resource_id = $2 ORDER BY kind`, table, id)
	if err != nil {
		return nil, fmt.Errorf("read seeded kinds %s/%d: %w", table, id, err)
	}
	kinds, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan seeded kinds %s/%d: %w", table, id, err)
	}
	return kinds, nil
}

func (s *postgresStore) CompleteIDs(ctx context.Context, table string, required []string) (map[int]struct{}, error) {
	required = uniqueSorted(required)

	var (
		rows pgx.Rows
		err  error
	)
	if len(required) == 0 {
		rows, err = s.pool.Query(ctx, `SELECT id FROM resources WHERE tbl = $1`, table)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT r.id FROM resources r
			 WHERE r.tbl = $1 AND (
			   SELECT COUNT(*) FROM seeded_kinds k
			   WHERE k.tbl = r.tbl AND k.resource_id = r.id AND k.kind = ANY($2)
			 ) = $3`,
			table, required, len(required))
	}
	if err != nil {
		return nil, fmt.Errorf("list complete ids of %s: %w", table, err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, fmt.Errorf("scan complete ids of %s: %w", table, err)
	}

	ids := make(map[int]struct{}, len(list))
	for _, id := range list {
		ids[int(id)] = struct{}{}
	}
	return ids, nil
}

func (s *postgresStore) CountResources(ctx context.Context, table string) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM resources WHERE tbl = $1`, table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return int(n), nil
}
