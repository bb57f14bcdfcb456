// Package memory implements the Memory Store (spec.md §3.5, §4.7):
// CRUD over long-term memory records plus semantic search, a single
// writer lock shared with the dirty-set bookkeeping, and a pub/sub
// wakeup for IDE clients (spec.md §4.7's memdb_pubsub_trigerred).
package memory

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/forgewright/enginecore/pkg/sqliteutil"
)

const ddl = `
CREATE TABLE IF NOT EXISTS memories (
	memid TEXT PRIMARY KEY,
	m_type TEXT NOT NULL,
	m_goal TEXT NOT NULL,
	m_project TEXT,
	m_payload TEXT,
	m_origin TEXT,
	mstat_correct INTEGER NOT NULL DEFAULT 0,
	mstat_relevant INTEGER NOT NULL DEFAULT 0,
	mstat_times_used INTEGER NOT NULL DEFAULT 0,
	created_ts INTEGER NOT NULL
);
`

// Record is a long-term memory (spec.md §3.5).
type Record struct {
	MemID          string
	MType          string
	MGoal          string
	MProject       string
	MPayload       string
	MOrigin        string
	MStatCorrect   int
	MStatRelevant  int
	MStatTimesUsed int
	CreatedTS      int64
}

// SearchResult pairs a Record with its distance from a query embedding.
type SearchResult struct {
	Record   Record
	Distance float64
}

// Embedder embeds a single query string for memories_search; a thin seam
// over the Embedding Client so this package does not depend on a specific
// provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher is the subset of the Vector Index's Memory-scoped API
// the store needs to run memories_search.
type VectorSearcher interface {
	SearchMemory(ctx context.Context, query []float32, k int) (map[string]float64, error) // memid -> distance
}

// DirtyNotifier is told about memory ids that need (re)embedding, mirroring
// the Vectorizer Service's dirty-set input (spec.md §4.5, §4.7).
type DirtyNotifier interface {
	MarkDirtyMemory(memid string)
}

// Store is the Memory Store. Concurrency: a single connection protected
// by mu; dirty bookkeeping shares the same lock (spec.md §4.7).
type Store struct {
	db *sql.DB

	mu    sync.Mutex
	dirty DirtyNotifier

	embedder Embedder
	search   VectorSearcher

	pubsubMu sync.Mutex
	waiters  []chan struct{}
}

// Option configures a Store.
type Option func(*Store)

func WithEmbedder(e Embedder) Option             { return func(s *Store) { s.embedder = e } }
func WithVectorSearcher(v VectorSearcher) Option  { return func(s *Store) { s.search = v } }
func WithDirtyNotifier(d DirtyNotifier) Option    { return func(s *Store) { s.dirty = d } }

// Open opens or creates the memory database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating memory schema: %w", err)
	}
	s := &Store{db: db}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// genMemID generates a memid: 10 lowercase hex characters (invariant I7),
// matching the refact original's random-nibble generation
// (original_source/.../memdb/db_memories.rs).
func genMemID() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 10)
	for i, b := range buf {
		out[i*2] = hexdigits[b>>4]
		out[i*2+1] = hexdigits[b&0x0f]
	}
	return string(out), nil
}

// MemoriesAdd inserts a new memory, generating a fresh id (retrying on a
// rare collision per I7), marks it dirty and wakes the Vectorizer.
func (s *Store) MemoriesAdd(ctx context.Context, mType, mGoal, mProject, mPayload, mOrigin string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var memid string
	for attempt := 0; attempt < 5; attempt++ {
		id, err := genMemID()
		if err != nil {
			return "", err
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO memories (memid, m_type, m_goal, m_project, m_payload, m_origin, created_ts) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, mType, mGoal, mProject, mPayload, mOrigin, time.Now().Unix())
		if err == nil {
			memid = id
			break
		}
		if !isUniqueViolation(err) {
			return "", fmt.Errorf("inserting memory: %w", err)
		}
		// id collision: retry with a fresh id.
	}
	if memid == "" {
		return "", fmt.Errorf("could not generate a unique memory id after retries")
	}

	if s.dirty != nil {
		s.dirty.MarkDirtyMemory(memid)
	}
	s.notifyMutation()
	return memid, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint violations via error text;
	// there is no portable typed check across drivers for this case.
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "constraint")
}

// MemoriesErase deletes a memory; deletion cascades to its embedding row
// in the Vector Index (the caller is responsible for that delete, mirrored
// from the Vectorizer's delete+reinsert cycle).
func (s *Store) MemoriesErase(ctx context.Context, memid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM memories WHERE memid = ?", memid)
	if err != nil {
		return fmt.Errorf("erasing memory %s: %w", memid, err)
	}
	s.notifyMutation()
	return nil
}

// MemoriesSelectAll returns every memory record.
func (s *Store) MemoriesSelectAll(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, fieldsSelect()+" FROM memories")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MemoriesUpdateUsed bumps usage statistics after a memory-lookup result
// is referenced approvingly (SPEC_FULL.md §2 supplemented feature,
// grounded on refact's mstat_* fields).
func (s *Store) MemoriesUpdateUsed(ctx context.Context, memid string, correct, relevant bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	toInt := func(b bool) int {
		if b {
			return 1
		}
		return 0
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE memories SET mstat_times_used = mstat_times_used + 1,
			mstat_correct = mstat_correct + ?, mstat_relevant = mstat_relevant + ? WHERE memid = ?`,
		toInt(correct), toInt(relevant), memid)
	return err
}

// MemoriesSearch embeds query once, runs k-NN via the configured
// VectorSearcher, and sorts ascending by distance (spec.md §4.7).
func (s *Store) MemoriesSearch(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if s.embedder == nil || s.search == nil {
		return nil, fmt.Errorf("memory search requires an embedder and vector searcher")
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding memory search query: %w", err)
	}
	distances, err := s.search.SearchMemory(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("searching memory vectors: %w", err)
	}

	all, err := s.MemoriesSelectAll(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Record, len(all))
	for _, r := range all {
		byID[r.MemID] = r
	}

	results := make([]SearchResult, 0, len(distances))
	for memid, d := range distances {
		if rec, ok := byID[memid]; ok {
			results = append(results, SearchResult{Record: rec, Distance: d})
		}
	}
	sortByDistance(results)
	return results, nil
}

func sortByDistance(r []SearchResult) {
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j].Distance < r[j-1].Distance; j-- {
			r[j], r[j-1] = r[j-1], r[j]
		}
	}
}

// PubsubTriggered blocks up to sleep or until the next mutation, whichever
// comes first, returning true if a mutation occurred (spec.md §4.7).
func (s *Store) PubsubTriggered(ctx context.Context, sleep time.Duration) bool {
	ch := make(chan struct{}, 1)
	s.pubsubMu.Lock()
	s.waiters = append(s.waiters, ch)
	s.pubsubMu.Unlock()

	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-ch:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Store) notifyMutation() {
	s.pubsubMu.Lock()
	waiters := s.waiters
	s.waiters = nil
	s.pubsubMu.Unlock()
	for _, w := range waiters {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

func fieldsSelect() string {
	return "SELECT memid, m_type, m_goal, m_project, m_payload, m_origin, mstat_correct, mstat_relevant, mstat_times_used, created_ts"
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	err := rows.Scan(&r.MemID, &r.MType, &r.MGoal, &r.MProject, &r.MPayload, &r.MOrigin,
		&r.MStatCorrect, &r.MStatRelevant, &r.MStatTimesUsed, &r.CreatedTS)
	return r, err
}
