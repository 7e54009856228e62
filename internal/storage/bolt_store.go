package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

// Layout: one top-level bucket per table, holding
//
//	rows/<id>                  -> boltRow JSON
//	subs/<id>/<kind>/<key>     -> value
//	kinds/<id>/<kind>          -> seeded unix time
const (
	rowsBucket  = "rows"
	subsBucket  = "subs"
	kindsBucket = "kinds"
)

type boltRow struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

// boltStore implements a Store backed by BoltDB.
type boltStore struct {
	db *bolt.DB
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	return &boltStore{db: db}, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func idKey(id int) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(id))
	return buf
}

func tableBucket(tx *bolt.Tx, table string, create bool) (*bolt.Bucket, error) {
	if !create {
		return tx.Bucket([]byte(table)), nil
	}
	return tx.CreateBucketIfNotExists([]byte(table))
}

// nested walks path below parent, creating buckets when create is set.
// It returns nil without error when a bucket is missing and create is unset.
func nested(parent *bolt.Bucket, create bool, path ...[]byte) (*bolt.Bucket, error) {
	cur := parent
	for _, name := range path {
		if cur == nil {
			return nil, nil
		}
		if create {
			next, err := cur.CreateBucketIfNotExists(name)
			if err != nil {
				return nil, err
			}
			cur = next
			continue
		}
		cur = cur.Bucket(name)
	}
	return cur, nil
}

func (b *boltStore) UpsertResource(_ context.Context, r domain.Resource) (bool, error) {
	if r.Table == "" || r.ID <= 0 {
		return false, fmt.Errorf("invalid resource key %s/%d", r.Table, r.ID)
	}
	payload := r.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	value, err := json.Marshal(boltRow{Name: r.Name, Payload: payload})
	if err != nil {
		return false, fmt.Errorf("encode %s/%d: %w", r.Table, r.ID, err)
	}

	var created bool
	err = b.db.Update(func(tx *bolt.Tx) error {
		tb, err := tableBucket(tx, r.Table, true)
		if err != nil {
			return err
		}
		rows, err := nested(tb, true, []byte(rowsBucket))
		if err != nil {
			return err
		}
		key := idKey(r.ID)
		created = rows.Get(key) == nil
		return rows.Put(key, value)
	})
	if err != nil {
		return false, fmt.Errorf("upsert %s/%d: %w", r.Table, r.ID, err)
	}
	return created, nil
}

func (b *boltStore) Resource(_ context.Context, table string, id int) (domain.Resource, error) {
	var (
		row   boltRow
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		tb, _ := tableBucket(tx, table, false)
		rows, _ := nested(tb, false, []byte(rowsBucket))
		if rows == nil {
			return nil
		}
		raw := rows.Get(idKey(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &row)
	})
	if err != nil {
		return domain.Resource{}, fmt.Errorf("read %s/%d: %w", table, id, err)
	}
	if !found {
		return domain.Resource{}, ErrNotFound
	}
	return domain.Resource{Table: table, ID: id, Name: row.Name, Payload: row.Payload}, nil
}

func (b *boltStore) UpsertSubRecords(_ context.Context, table string, id int, kind string, records []domain.SubRecord) error {
	if err := validateRecords(table, id, kind, records); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		tb, err := tableBucket(tx, table, true)
		if err != nil {
			return err
		}
		subs, err := nested(tb, true, []byte(subsBucket), idKey(id), []byte(kind))
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := subs.Put([]byte(rec.Key), []byte(rec.Value)); err != nil {
				return err
			}
		}
		kinds, err := nested(tb, true, []byte(kindsBucket), idKey(id))
		if err != nil {
			return err
		}
		return kinds.Put([]byte(kind), idKey(int(time.Now().Unix())))
	})
}

func (b *boltStore) SubRecords(_ context.Context, table string, id int, kind string) ([]domain.SubRecord, error) {
	var out []domain.SubRecord
	err := b.db.View(func(tx *bolt.Tx) error {
		tb, _ := tableBucket(tx, table, false)
		subs, _ := nested(tb, false, []byte(subsBucket), idKey(id), []byte(kind))
		if subs == nil {
			return nil
		}
		return subs.ForEach(func(k, v []byte) error {
			out = append(out, domain.SubRecord{Table: table, ResourceID: id, Kind: kind, Key: string(k), Value: string(v)})
			return nil
		})
	})
	return out, err
}

func (b *boltStore) SeededKinds(_ context.Context, table string, id int) ([]string, error) {
	var kinds []string
	err := b.db.View(func(tx *bolt.Tx) error {
		tb, _ := tableBucket(tx, table, false)
		bucket, _ := nested(tb, false, []byte(kindsBucket), idKey(id))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			kinds = append(kinds, string(k))
			return nil
		})
	})
	sort.Strings(kinds)
	return kinds, err
}

func (b *boltStore) CompleteIDs(_ context.Context, table string, required []string) (map[int]struct{}, error) {
	required = uniqueSorted(required)
	ids := make(map[int]struct{})
	err := b.db.View(func(tx *bolt.Tx) error {
		tb, _ := tableBucket(tx, table, false)
		rows, _ := nested(tb, false, []byte(rowsBucket))
		if rows == nil {
			return nil
		}
		kindsRoot, _ := nested(tb, false, []byte(kindsBucket))
		return rows.ForEach(func(k, _ []byte) error {
			if len(required) > 0 {
				if kindsRoot == nil {
					return nil
				}
				seeded := kindsRoot.Bucket(k)
				if seeded == nil {
					return nil
				}
				for _, kind := range required {
					if seeded.Get([]byte(kind)) == nil {
						return nil
					}
				}
			}
			ids[int(binary.BigEndian.Uint64(k))] = struct{}{}
			return nil
		})
	})
	return ids, err
}

func (b *boltStore) CountResources(_ context.Context, table string) (int, error) {
	var n int
	err := b.db.View(func(tx *bolt.Tx) error {
		tb, _ := tableBucket(tx, table, false)
		rows, _ := nested(tb, false, []byte(rowsBucket))
		if rows == nil {
			return nil
		}
		n = rows.Stats().KeyN
		return nil
	})
	return n, err
}
