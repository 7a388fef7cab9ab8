// Package sqlstore implements metacache.Store on a relational database via gorm.
//
// Rows live in a single "cache" table keyed by (id, kind). alias_key holds the
// alias as it is matched: lowercased for case-insensitive kinds.
package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/unkn0wn-root/metacache"
)

// keeps each IN list well under driver bind-variable limits
const (
	findChunk   = 400
	upsertBatch = 200
)

type row struct {
	ID        string         `gorm:"primaryKey;size:191"`
	Kind      string         `gorm:"primaryKey;size:32;index:idx_cache_alias,priority:1"`
	Alias     *string        `gorm:"size:191"`
	AliasKey  *string        `gorm:"size:191;index:idx_cache_alias,priority:2"`
	Payload   datatypes.JSON `gorm:"not null"`
	ExpiresAt int64          `gorm:"not null"`
}

func (row) TableName() string { return "cache" }

// Store is safe for concurrent use.
type Store struct {
	db    *gorm.DB
	owned bool
}

var _ metacache.Store = (*Store)(nil)

// New wraps an open connection and migrates the cache table. The caller keeps
// ownership of db.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("sqlstore: db is required")
	}
	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Find(ctx context.Context, kind metacache.Kind, keys []string) ([]metacache.Entry, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	seen := make(map[string]struct{}, len(keys))
	var out []metacache.Entry
	for start := 0; start < len(keys); start += findChunk {
		chunk := keys[start:min(start+findChunk, len(keys))]
		aliases := make([]string, len(chunk))
		for i, k := range chunk {
			aliases[i] = metacache.AliasKey(kind, k)
		}

		var rows []row
		err := s.db.WithContext(ctx).
			Where("kind = ? AND (id IN ? OR alias_key IN ?)", kind.String(), chunk, aliases).
			Find(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if _, dup := seen[r.ID]; dup {
				continue
			}
			seen[r.ID] = struct{}{}
			out = append(out, r.entry(kind))
		}
	}
	return out, nil
}

// Upsert writes all entries in one transaction; a row with the same (id, kind)
// is replaced, including its alias.
func (s *Store) Upsert(ctx context.Context, entries []metacache.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	// ON CONFLICT cannot touch the same row twice in one statement
	idx := make(map[[2]string]int, len(entries))
	rows := make([]row, 0, len(entries))
	for _, e := range entries {
		r := fromEntry(e)
		k := [2]string{r.ID, r.Kind}
		if i, ok := idx[k]; ok {
			rows[i] = r
			continue
		}
		idx[k] = len(rows)
		rows = append(rows, r)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}, {Name: "kind"}},
			DoUpdates: clause.AssignmentColumns([]string{"alias", "alias_key", "payload", "expires_at"}),
		}).CreateInBatches(&rows, upsertBatch).Error
	})
}

// Close closes the connection if the store opened it.
func (s *Store) Close(context.Context) error {
	if !s.owned {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func fromEntry(e metacache.Entry) row {
	r := row{
		ID:        e.ID,
		Kind:      e.Kind.String(),
		Payload:   datatypes.JSON(e.Payload),
		ExpiresAt: e.ExpiresAt.Unix(),
	}
	if e.Alias != "" {
		alias := e.Alias
		key := metacache.AliasKey(e.Kind, e.Alias)
		r.Alias, r.AliasKey = &alias, &key
	}
	return r
}

func (r row) entry(kind metacache.Kind) metacache.Entry {
	e := metacache.Entry{
		ID:        r.ID,
		Kind:      kind,
		Payload:   json.RawMessage(r.Payload),
		ExpiresAt: time.Unix(r.ExpiresAt, 0).UTC(),
	}
	if r.Alias != nil {
		e.Alias = *r.Alias
	}
	return e
}
