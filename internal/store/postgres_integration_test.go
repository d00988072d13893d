package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/fleetmech/fleetmech/internal/log"
)

// openPostgresOrSkip connects to the database named by
// FLEETMECH_TEST_DATABASE_URL, skipping when it is unset. The database
// must have the pgvector extension available.
func openPostgresOrSkip(t *testing.T, dim int) *Postgres {
	t.Helper()
	url := os.Getenv("FLEETMECH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("FLEETMECH_TEST_DATABASE_URL not set - skipping postgres integration test")
	}

	p, err := OpenPostgres(context.Background(), url, dim, log.Nop())
	if err != nil {
		t.Fatalf("OpenPostgres() error: %v", err)
	}
	t.Cleanup(func() {
		_, _ = p.pool.Exec(context.Background(), `TRUNCATE chunks`)
		_ = p.Close()
	})
	return p
}

func TestPostgres_AddAndSearch(t *testing.T) {
	p := openPostgresOrSkip(t, 3)
	ctx := context.Background()

	err := p.Add(ctx, []Entry{
		entry("pg-far", 0, "coolant flush", []float32{0, 1, 0}),
		entry("pg-near", 1, "oil pressure", []float32{1, 0, 0}),
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	results, err := p.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 || results[0].Chunk.ID != "pg-near" {
		t.Fatalf("unexpected order: %+v", results)
	}
}

func TestPostgres_DimensionMismatch(t *testing.T) {
	p := openPostgresOrSkip(t, 3)
	ctx := context.Background()

	err := p.Add(ctx, []Entry{entry("pg-bad", 0, "x", []float32{1, 2})})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add() = %v, want ErrDimensionMismatch", err)
	}

	_, err = p.Search(ctx, []float32{1, 2}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search() = %v, want ErrDimensionMismatch", err)
	}
}

func TestPostgres_EmptyStore(t *testing.T) {
	p := openPostgresOrSkip(t, 3)

	results, err := p.Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() on empty store error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store, want 0", len(results))
	}
}

func TestPostgres_TieBreakInsertionOrder(t *testing.T) {
	p := openPostgresOrSkip(t, 3)
	ctx := context.Background()

	same := []float32{0.5, 0.5, 0}
	for i := range 3 {
		if err := p.Add(ctx, []Entry{entry(fmt.Sprintf("pg-tie-%d", i), i, "dup", same)}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := p.Search(ctx, []float32{1, 1, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	for i, r := range results {
		if want := fmt.Sprintf("pg-tie-%d", i); r.Chunk.ID != want {
			t.Errorf("result %d = %q, want %q", i, r.Chunk.ID, want)
		}
	}
}
