package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fleetmech/fleetmech/internal/document"
	"github.com/fleetmech/fleetmech/internal/log"
)

// Postgres is a pgvector-backed Store for deployments where several
// services share one knowledge base. Unlike the SQLite backend, the
// dimensionality is fixed up front: pgvector columns are typed
// vector(N) at schema creation.
//
// Postgres is safe for concurrent use; every Add statement is its own
// transaction, so readers never observe a half-written entry.
type Postgres struct {
	pool   *pgxpool.Pool
	dim    int
	logger log.Logger
}

// OpenPostgres connects to databaseURL and bootstraps the schema with
// the given embedding dimension.
func OpenPostgres(ctx context.Context, databaseURL string, dim int, logger log.Logger) (*Postgres, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension %d", ErrDimensionMismatch, dim)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			seq         BIGSERIAL PRIMARY KEY,
			id          TEXT NOT NULL UNIQUE,
			document_id TEXT NOT NULL,
			source      TEXT NOT NULL,
			chunk_index INT NOT NULL,
			content     TEXT NOT NULL,
			embedding   vector(%d) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks(document_id)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, fmt.Errorf("initializing schema: %w", err)
		}
	}

	logger.Debug("opened postgres store", "dimension", dim)
	return &Postgres{pool: pool, dim: dim, logger: logger}, nil
}

// Add persists entries one statement at a time, each in its own implicit
// transaction.
func (p *Postgres) Add(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Embedding) != p.dim {
			return fmt.Errorf("%w: got %d, store has %d (chunk %q)",
				ErrDimensionMismatch, len(e.Embedding), p.dim, e.Chunk.ID)
		}
		if _, err := p.pool.Exec(ctx,
			`INSERT INTO chunks (id, document_id, source, chunk_index, content, embedding, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.Chunk.ID, e.Chunk.DocumentID, e.Chunk.Source, e.Chunk.Index,
			e.Chunk.Text, pgvector.NewVector(e.Embedding), time.Now().UTC(),
		); err != nil {
			return fmt.Errorf("inserting chunk %q: %w", e.Chunk.ID, err)
		}
	}
	return nil
}

// Search uses pgvector's cosine distance operator; similarity is
// 1 - distance. The secondary seq ordering breaks ties by insertion
// order.
func (p *Postgres) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(query) != p.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(query), p.dim)
	}

	vec := pgvector.NewVector(query)
	rows, err := p.pool.Query(ctx,
		`SELECT id, document_id, source, chunk_index, content, 1 - (embedding <=> $1) AS score
		 FROM chunks
		 ORDER BY embedding <=> $1, seq
		 LIMIT $2`,
		vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var (
			ch    document.Chunk
			score float64
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Source, &ch.Index, &ch.Text, &score); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		results = append(results, Result{Chunk: ch, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return results, nil
}

// Count reports the number of stored chunks.
func (p *Postgres) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

var _ Store = (*Postgres)(nil)
