// Package cache implements the persistent Vector Cache (spec.md §4.3): a
// content-addressed embedding store keyed by window_text_hash, surviving
// restarts, backed by modernc.org/sqlite the way pkg/sqliteutil/pkg/memory
// open their databases.
package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/forgewright/enginecore/pkg/sqliteutil"
)

const schemaVersion = 1

const ddl = `
CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL);
CREATE TABLE IF NOT EXISTS embeddings (
	vector BLOB NOT NULL,
	window_text TEXT NOT NULL,
	window_text_hash TEXT NOT NULL UNIQUE
);
CREATE INDEX IF NOT EXISTS idx_embeddings_hash ON embeddings(window_text_hash);
`

// Record is one cached embedding.
type Record struct {
	WindowText     string
	WindowTextHash string
	Vector         []float32
}

// Cache is the persistent Vector Cache. An in-memory set of known hashes
// is maintained for O(1) membership checks (spec.md §4.3).
type Cache struct {
	db *sql.DB

	mu     sync.RWMutex
	hashes map[string]bool
}

// Open opens or creates the cache database at path, validating the schema
// and dropping+recreating it on mismatch, then builds the in-memory hash
// set (spec.md §4.3).
func Open(ctx context.Context, path string) (*Cache, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	c := &Cache{db: db, hashes: make(map[string]bool)}
	if err := c.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := c.loadHashes(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) ensureSchema(ctx context.Context) error {
	var version int
	row := c.db.QueryRowContext(ctx, "SELECT version FROM schema_meta LIMIT 1")
	err := row.Scan(&version)

	if err == nil && version == schemaVersion {
		return nil
	}

	// Missing table, or schema mismatch: drop and recreate.
	if _, err := c.db.ExecContext(ctx, "DROP TABLE IF EXISTS embeddings; DROP TABLE IF EXISTS schema_meta;"); err != nil {
		return fmt.Errorf("dropping stale cache schema: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating cache schema: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, "INSERT INTO schema_meta (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("recording cache schema version: %w", err)
	}
	return nil
}

func (c *Cache) loadHashes(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx, "SELECT window_text_hash FROM embeddings")
	if err != nil {
		return fmt.Errorf("loading cache hashes: %w", err)
	}
	defer rows.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return err
		}
		c.hashes[h] = true
	}
	return rows.Err()
}

// GetBySplits partitions hashes into those already cached (hit) and those
// that must be embedded (miss) (spec.md §4.3).
func (c *Cache) GetBySplits(hashes []string) (hit, miss []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, h := range hashes {
		if c.hashes[h] {
			hit = append(hit, h)
		} else {
			miss = append(miss, h)
		}
	}
	return hit, miss
}

// Fetch loads the vectors for the given (already-known-cached) hashes.
func (c *Cache) Fetch(ctx context.Context, hashes []string) (map[string][]float32, error) {
	out := make(map[string][]float32, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	placeholders := make([]any, len(hashes))
	query := "SELECT window_text_hash, vector FROM embeddings WHERE window_text_hash IN ("
	for i, h := range hashes {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = h
	}
	query += ")"

	rows, err := c.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("fetching cached vectors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var h string
		var blob []byte
		if err := rows.Scan(&h, &blob); err != nil {
			return nil, err
		}
		out[h] = decodeVector(blob)
	}
	return out, rows.Err()
}

// InsertRecords inserts records in a single transaction (spec.md §4.3) and
// updates the in-memory membership set.
func (c *Cache) InsertRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning cache insert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO embeddings (vector, window_text, window_text_hash) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, encodeVector(r.Vector), r.WindowText, r.WindowTextHash); err != nil {
			return fmt.Errorf("inserting cache record %s: %w", r.WindowTextHash, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing cache insert tx: %w", err)
	}

	c.mu.Lock()
	for _, r := range records {
		c.hashes[r.WindowTextHash] = true
	}
	c.mu.Unlock()
	return nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
