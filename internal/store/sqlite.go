package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/fleetmech/fleetmech/internal/document"
	"github.com/fleetmech/fleetmech/internal/log"
)

// ErrStoreLocked is returned when another process holds the store file.
var ErrStoreLocked = errors.New("store is locked by another process")

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	document_id TEXT NOT NULL,
	source      TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks(document_id);
`

// SQLite is a durable, file-backed Store.
//
// Embeddings are stored as little-endian float32 BLOBs and similarity is
// computed in-process, which is plenty for a single-fleet knowledge base.
// The store's dimensionality is fixed by the first added embedding and
// persisted in the meta table, so it survives restarts.
//
// SQLite is safe for concurrent use within one process; a flock on the
// database file keeps a second process out.
type SQLite struct {
	db     *sql.DB
	lock   *flock.Flock
	logger log.Logger

	mu  sync.Mutex // serializes writers and guards dim
	dim int        // 0 until the first Add
}

// OpenSQLite opens (or creates) the store at path.
func OpenSQLite(path string, logger log.Logger) (*SQLite, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking store: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("opening store: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("configuring store: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	s := &SQLite{db: db, lock: lock, logger: logger}
	if err := s.loadDimension(); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	logger.Debug("opened sqlite store", "path", path, "dimension", s.dim)
	return s, nil
}

func (s *SQLite) loadDimension() error {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'dimension'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading store dimension: %w", err)
	}
	dim, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("corrupt store dimension %q: %w", value, err)
	}
	s.dim = dim
	return nil
}

// Add persists entries, one transaction per chunk. The first entry ever
// added fixes the store's dimensionality.
func (s *SQLite) Add(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("%w: empty embedding for chunk %q", ErrDimensionMismatch, e.Chunk.ID)
		}
		if s.dim != 0 && len(e.Embedding) != s.dim {
			return fmt.Errorf("%w: got %d, store has %d (chunk %q)",
				ErrDimensionMismatch, len(e.Embedding), s.dim, e.Chunk.ID)
		}

		if err := s.addOne(ctx, e); err != nil {
			return err
		}
		if s.dim == 0 {
			s.dim = len(e.Embedding)
		}
	}
	return nil
}

// addOne commits a single entry atomically. The dimension row is written
// in the same transaction as the first chunk, so a crash cannot leave
// the store claiming a dimensionality it holds no vectors for.
func (s *SQLite) addOne(ctx context.Context, e Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if s.dim == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('dimension', ?)
			 ON CONFLICT (key) DO NOTHING`,
			strconv.Itoa(len(e.Embedding)),
		); err != nil {
			return fmt.Errorf("persisting dimension: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chunks (id, document_id, source, chunk_index, content, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Chunk.ID, e.Chunk.DocumentID, e.Chunk.Source, e.Chunk.Index,
		e.Chunk.Text, encodeEmbedding(e.Embedding), time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("inserting chunk %q: %w", e.Chunk.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunk %q: %w", e.Chunk.ID, err)
	}
	return nil
}

// Search scans all stored embeddings and returns the topK most similar.
// Rows are read in seq order, and the stable sort preserves that order
// for equal scores.
func (s *SQLite) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	dim := s.dim
	s.mu.Unlock()
	if dim == 0 {
		// Nothing ingested yet: an empty store answers with no results.
		return []Result{}, nil
	}
	if len(query) != dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(query), dim)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, source, chunk_index, content, embedding
		 FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("scanning chunks: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			ch   document.Chunk
			blob []byte
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Source, &ch.Index, &ch.Text, &blob); err != nil {
			return nil, fmt.Errorf("scanning chunk row: %w", err)
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for chunk %q: %w", ch.ID, err)
		}
		score, err := cosineSimilarity(query, vec)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{Chunk: ch, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count reports the number of stored chunks.
func (s *SQLite) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Close releases the database handle and the process lock.
func (s *SQLite) Close() error {
	err := s.db.Close()
	if unlockErr := s.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

var _ Store = (*SQLite)(nil)
