package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS resources (
    tbl        TEXT    NOT NULL,
    id         INTEGER NOT NULL,
    name       TEXT    NOT NULL DEFAULT '',
    payload    TEXT    NOT NULL DEFAULT '{}',
    updated_at DATETIME NOT NULL,
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
    tbl         TEXT    NOT NULL,
    resource_id INTEGER NOT NULL,
    kind        TEXT    NOT NULL,
    seeded_at   DATETIME NOT NULL,
    PRIMARY KEY (tbl, resource_id, kind)
);
`

// sqliteStore implements Store on SQLite.
type sqliteStore struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertResource(ctx context.Context, r domain.Resource) (bool, error) {
	if r.Table == "" || r.ID <= 0 {
		return false, fmt.Errorf("invalid resource key %s/%d", r.Table, r.ID)
	}
	payload := string(r.Payload)
	if payload == "" {
		payload = "{}"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM resources WHERE tbl = ? AND id = ?`, r.Table, r.ID).Scan(&one)
	created := errors.Is(err, sql.ErrNoRows)
	if err != nil && !created {
		return false, fmt.Errorf("lookup %s/%d: %w", r.Table, r.ID, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO resources (tbl, id, name, payload, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tbl, id) DO UPDATE SET name = excluded.name, payload = excluded.payload, updated_at = excluded.updated_at`,
		r.Table, r.ID, r.Name, payload, time.Now().UTC(),
	); err != nil {
		return false, fmt.Errorf("upsert %s/%d: %w", r.Table, r.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit %s/%d: %w", r.Table, r.ID, err)
	}
	return created, nil
}

func (s *sqliteStore) Resource(ctx context.Context, table string, id int) (domain.Resource, error) {
	r := domain.Resource{Table: table, ID: id}
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT name, payload FROM resources WHERE tbl = ? AND id = ?`, table, id).Scan(&r.Name, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Resource{}, ErrNotFound
	}
	if err != nil {
		return domain.Resource{}, fmt.Errorf("read %s/%d: %w", table, id, err)
	}
	r.Payload = []byte(payload)
	return r, nil
}

func (s *sqliteStore) UpsertSubRecords(ctx context.Context, table string, id int, kind string, records []domain.SubRecord) error {
	if err := validateRecords(table, id, kind, records); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sub_records (tbl, resource_id, kind, rec_key, value) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tbl, resource_id, kind, rec_key) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("prepare sub-record upsert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, table, id, kind, rec.Key, rec.Value); err != nil {
			return fmt.Errorf("upsert %s/%d/%s/%s: %w", table, id, kind, rec.Key, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO seeded_kinds (tbl, resource_id, kind, seeded_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (tbl, resource_id, kind) DO UPDATE SET seeded_at = excluded.seeded_at`,
		table, id, kind, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("mark %s/%d/%s seeded: %w", table, id, kind, err)
	}
	return tx.Commit()
}

func (s *sqliteStore) SubRecords(ctx context.Context, table string, id int, kind string) ([]domain.SubRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rec_key, value FROM sub_records WHERE tbl = ? AND resource_id = ? AND kind = ? ORDER BY rec_key`,
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

func (s *sqliteStore) SeededKinds(ctx context.Context, table string, id int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind FROM seeded_kinds WHERE tbl = ? AND resource_id = ? ORDER BY kind`, table, id)
	if err != nil {
		return nil, fmt.Errorf("read seeded kinds %s/%d: %w", table, id, err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, rows.Err()
}

func (s *sqliteStore) CompleteIDs(ctx context.Context, table string, required []string) (map[int]struct{}, error) {
	required = uniqueSorted(required)

	query := `SELECT id FROM resources WHERE tbl = ?`
	args := []any{table}
	if len(required) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(required)), ",")
		query = `SELECT r.id FROM resources r
		 WHERE r.tbl = ? AND (
		   SELECT COUNT(*) FROM seeded_kinds k
		   WHERE k.tbl = r.tbl AND k.resource_id = r.id AND k.kind IN (` + placeholders + `)
		 ) = ?`
		for _, k := range required {
			args = append(args, k)
		}
		args = append(args, len(required))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list complete ids of %s: %w", table, err)
	}
	defer rows.Close()

	ids := make(map[int]struct{})
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *sqliteStore) CountResources(ctx context.Context, table string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources WHERE tbl = ?`, table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}
