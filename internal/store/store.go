// Package store persists chunk embeddings and serves nearest-neighbor
// similarity search.
//
// Two backends implement the Store interface: a file-backed SQLite store
// (the default; embeddings as little-endian float32 BLOBs, cosine
// computed in-process) and a PostgreSQL/pgvector store for shared
// deployments.
//
// Both backends fix their dimensionality on first use and reject
// mismatched vectors with ErrDimensionMismatch. Search results are
// ordered by descending cosine similarity; equal scores keep insertion
// order. Searching an empty store returns an empty result set, never an
// error.
package store

import (
	"context"
	"errors"

	"github.com/fleetmech/fleetmech/internal/document"
)

// ErrDimensionMismatch is returned when an embedding's length differs
// from the store's fixed dimensionality.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Entry pairs a chunk with its embedding for persistence.
type Entry struct {
	Chunk     document.Chunk
	Embedding []float32
}

// Result is a retrieved chunk with its similarity to the query.
type Result struct {
	Chunk document.Chunk
	Score float64 // cosine similarity, higher is more similar
}

// Store is the persistence interface consumed by the pipeline.
type Store interface {
	// Add persists entries. Each entry is committed atomically on its
	// own, so an abandoned ingestion never leaves a half-written chunk
	// visible to Search.
	Add(ctx context.Context, entries []Entry) error

	// Search returns up to topK entries most similar to the query
	// embedding, in descending similarity order with ties broken by
	// insertion order. An empty store yields an empty slice.
	Search(ctx context.Context, query []float32, topK int) ([]Result, error)

	// Count reports the number of stored chunks.
	Count(ctx context.Context) (int64, error)

	Close() error
}
