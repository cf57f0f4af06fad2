package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// The payload column is json rather than jsonb: jsonb does not keep object
// key order, and raw rows rely on it for display.
const createCacheTable = `
CREATE TABLE IF NOT EXISTS rule_set_cache (
	cache_key  TEXT PRIMARY KEY,
	payload    JSON NOT NULL,
	saved_at   TIMESTAMPTZ NOT NULL
)`

const (
	upsertSnapshot = `
INSERT INTO rule_set_cache (cache_key, payload, saved_at)
VALUES ($1, $2, $3)
ON CONFLICT (cache_key) DO UPDATE
SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`

	selectSnapshot = `SELECT payload::text FROM rule_set_cache WHERE cache_key = $1`

	deleteSnapshot = `DELETE FROM rule_set_cache WHERE cache_key = $1`

	pruneSnapshots = `DELETE FROM rule_set_cache WHERE saved_at < $1`
)

// PostgresCache is a Cache backed by the rule_set_cache table.
type PostgresCache struct {
	db       DBTX
	maxBytes int64
}

// NewPostgresCache wraps db. Call EnsureSchema once before use.
func NewPostgresCache(db DBTX, maxBytes int64) *PostgresCache {
	return &PostgresCache{db: db, maxBytes: maxBytes}
}

// EnsureSchema creates the cache table if it does not exist.
func (c *PostgresCache) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, createCacheTable); err != nil {
		return fmt.Errorf("create rule_set_cache: %w", err)
	}
	return nil
}

func (c *PostgresCache) Save(ctx context.Context, key string, s Snapshot) error {
	data, err := Encode(s, c.maxBytes)
	if err != nil {
		return err
	}

	if _, err := c.db.Exec(ctx, upsertSnapshot, key, string(data), s.SavedAt()); err != nil {
		return fmt.Errorf("save snapshot %q: %w", key, err)
	}
	return nil
}

func (c *PostgresCache) Load(ctx context.Context, key string) (Snapshot, error) {
	var payload string
	err := c.db.QueryRow(ctx, selectSnapshot, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrCacheMiss
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot %q: %w", key, err)
	}
	return Decode([]byte(payload))
}

func (c *PostgresCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.Exec(ctx, deleteSnapshot, key); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", key, err)
	}
	return nil
}

func (c *PostgresCache) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := c.db.Exec(ctx, pruneSnapshots, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
