// Package index implements the Vector Index (spec.md §4.4): ANN search
// over snippet/memory embeddings with file/line metadata, ordered by
// ascending distance, with the usefulness-from-distance derivation and a
// per-model rejection threshold.
//
// modernc.org/sqlite (the pack's pure-Go driver) has no native vector kNN
// operator, so the kNN JOIN of spec.md §4.4 is implemented as: load
// candidate rows from the embeddings table, score them in Go with L2
// distance (teacher's pkg/rag/database exposes the analogous
// CosineSimilarity/SortByScore helper pair for its own search), then sort
// and cut at k. The SQL schema still matches spec.md §6.3 exactly, so a
// future swap to a vector-capable SQLite build needs no migration.
package index

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/forgewright/enginecore/pkg/sqliteutil"
	"github.com/forgewright/enginecore/pkg/vecstore"
)

const ddl = `
CREATE TABLE IF NOT EXISTS vector_records (
	embedding BLOB NOT NULL,
	memid TEXT,
	snippet_id TEXT,
	file_path TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	window_text TEXT NOT NULL,
	window_text_hash TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vector_records_path ON vector_records(file_path);
CREATE INDEX IF NOT EXISTS idx_vector_records_memid ON vector_records(memid);
`

// Index is the Vector Index.
type Index struct {
	db *sql.DB
}

// Open opens or creates the index database at path.
func Open(ctx context.Context, path string) (*Index, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vector index schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error { return idx.db.Close() }

// Row is one row to (re)insert into the index.
type Row struct {
	MemIDOrSnippetID string
	IsMemory         bool
	FilePath         string
	StartLine        int
	EndLine          int
	WindowText       string
	WindowTextHash   string
	Vector           []float32
}

// DeleteByPath removes all rows for a file, for the Vectorizer Service's
// delete+reinsert cycle (spec.md §4.5 step 6).
func (idx *Index) DeleteByPath(ctx context.Context, filePath string) error {
	_, err := idx.db.ExecContext(ctx, "DELETE FROM vector_records WHERE file_path = ?", filePath)
	return err
}

// DeleteByMemID removes all rows for a memory id.
func (idx *Index) DeleteByMemID(ctx context.Context, memid string) error {
	_, err := idx.db.ExecContext(ctx, "DELETE FROM vector_records WHERE memid = ?", memid)
	return err
}

// InsertRows inserts rows in one transaction.
func (idx *Index) InsertRows(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vector_records
		(embedding, memid, snippet_id, file_path, start_line, end_line, window_text, window_text_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		memid, snippetID := "", r.MemIDOrSnippetID
		if r.IsMemory {
			memid, snippetID = r.MemIDOrSnippetID, ""
		}
		if _, err := stmt.ExecContext(ctx, encodeVector(r.Vector), memid, snippetID,
			r.FilePath, r.StartLine, r.EndLine, r.WindowText, r.WindowTextHash); err != nil {
			return fmt.Errorf("inserting vector row: %w", err)
		}
	}
	return tx.Commit()
}

// Search runs a k-NN query: candidates are scored by L2 distance to
// query, ordered ascending, cut at k, and each result's Usefulness and
// Distance are filled in per spec.md §4.4. Records with |distance| >=
// rejectionThreshold are dropped before the cut (I3).
func (idx *Index) Search(ctx context.Context, query []float32, k int, rejectionThreshold float64) ([]vecstore.VectorRecord, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT embedding, memid, snippet_id, file_path, start_line, end_line, window_text, window_text_hash FROM vector_records`)
	if err != nil {
		return nil, fmt.Errorf("querying vector index: %w", err)
	}
	defer rows.Close()

	type scored struct {
		rec vecstore.VectorRecord
		d   float64
	}
	var candidates []scored
	for rows.Next() {
		var blob []byte
		var memid, snippetID, filePath, windowText, hash sql.NullString
		var startLine, endLine int
		if err := rows.Scan(&blob, &memid, &snippetID, &filePath, &startLine, &endLine, &windowText, &hash); err != nil {
			return nil, err
		}
		vec := decodeVector(blob)
		d := l2Distance(query, vec)
		if d >= rejectionThreshold {
			continue
		}
		id := memid.String
		if id == "" {
			id = snippetID.String
		}
		candidates = append(candidates, scored{
			rec: vecstore.VectorRecord{
				MemIDOrSnippetID: id,
				FilePath:         filePath.String,
				StartLine:        startLine,
				EndLine:          endLine,
				WindowText:       windowText.String,
				WindowTextHash:   hash.String,
				Distance:         d,
			},
			d: d,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].d < candidates[j].d })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	d0 := candidates[0].d
	out := make([]vecstore.VectorRecord, len(candidates))
	for i, c := range candidates {
		c.rec.Usefulness = vecstore.UsefulnessFromDistance(c.d, d0)
		out[i] = c.rec
	}
	return out, nil
}

// SearchMemory runs k-NN restricted to memory rows (memid IS NOT NULL)
// and returns distances keyed by memid, for the Memory Store's
// memories_search (spec.md §4.7).
func (idx *Index) SearchMemory(ctx context.Context, query []float32, k int) (map[string]float64, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT embedding, memid FROM vector_records WHERE memid IS NOT NULL AND memid != ''`)
	if err != nil {
		return nil, fmt.Errorf("querying memory vectors: %w", err)
	}
	defer rows.Close()

	type scored struct {
		memid string
		d     float64
	}
	var candidates []scored
	for rows.Next() {
		var blob []byte
		var memid string
		if err := rows.Scan(&blob, &memid); err != nil {
			return nil, err
		}
		candidates = append(candidates, scored{memid: memid, d: l2Distance(query, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].d < candidates[j].d })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		out[c.memid] = c.d
	}
	return out, nil
}

func l2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
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
