package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fleetmech/fleetmech/internal/document"
	"github.com/fleetmech/fleetmech/internal/log"
)

func openTestStore(t *testing.T) (*SQLite, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fleetmech.db")
	s, err := OpenSQLite(path, log.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func entry(id string, index int, text string, vec []float32) Entry {
	return Entry{
		Chunk: document.Chunk{
			ID:         id,
			DocumentID: "doc-1",
			Source:     "manual.txt",
			Index:      index,
			Text:       text,
		},
		Embedding: vec,
	}
}

func TestSQLite_AddAndSearch_Ordering(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	// Vectors at decreasing similarity to the query (1,0,0).
	err := s.Add(ctx, []Entry{
		entry("c-far", 0, "coolant flush", []float32{0, 1, 0}),
		entry("c-near", 1, "oil pressure", []float32{1, 0, 0}),
		entry("c-mid", 2, "thermostat", []float32{1, 1, 0}),
	})
	if err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	wantOrder := []string{"c-near", "c-mid", "c-far"}
	if len(results) != len(wantOrder) {
		t.Fatalf("got %d results, want %d", len(results), len(wantOrder))
	}
	for i, want := range wantOrder {
		if results[i].Chunk.ID != want {
			t.Errorf("result %d = %q (score %.3f), want %q", i, results[i].Chunk.ID, results[i].Score, want)
		}
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not in descending score order at %d", i)
		}
	}
}

func TestSQLite_Search_TieBreakInsertionOrder(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	// Identical vectors: scores tie exactly, insertion order must hold.
	same := []float32{0.5, 0.5, 0}
	for i := range 4 {
		id := fmt.Sprintf("tie-%d", i)
		if err := s.Add(ctx, []Entry{entry(id, i, "dup", same)}); err != nil {
			t.Fatalf("Add(%s) error: %v", id, err)
		}
	}

	results, err := s.Search(ctx, []float32{1, 1, 0}, 4)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	for i, r := range results {
		if want := fmt.Sprintf("tie-%d", i); r.Chunk.ID != want {
			t.Errorf("result %d = %q, want %q (insertion order)", i, r.Chunk.ID, want)
		}
	}
}

func TestSQLite_Search_TopKLimit(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	for i := range 10 {
		v := []float32{float32(i), 1, 0}
		if err := s.Add(ctx, []Entry{entry(fmt.Sprintf("c-%d", i), i, "x", v)}); err != nil {
			t.Fatal(err)
		}
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}

	// Fewer entries than topK: return what exists.
	results, err = s.Search(ctx, []float32{1, 0, 0}, 50)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 10 {
		t.Errorf("got %d results, want 10", len(results))
	}
}

func TestSQLite_Search_EmptyStore(t *testing.T) {
	s, _ := openTestStore(t)

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search() on empty store error: %v (policy: empty slice, no error)", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty store, want 0", len(results))
	}
}

func TestSQLite_DimensionMismatch(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, []Entry{entry("c-1", 0, "a", []float32{1, 2, 3})}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}

	err := s.Add(ctx, []Entry{entry("c-2", 1, "b", []float32{1, 2})})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add() with wrong dimension = %v, want ErrDimensionMismatch", err)
	}

	_, err = s.Search(ctx, []float32{1, 2, 3, 4}, 5)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search() with wrong dimension = %v, want ErrDimensionMismatch", err)
	}

	err = s.Add(ctx, []Entry{entry("c-3", 2, "c", nil)})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Add() with empty embedding = %v, want ErrDimensionMismatch", err)
	}
}

func TestSQLite_DurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleetmech.db")

	s, err := OpenSQLite(path, log.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	ctx := context.Background()
	if err := s.Add(ctx, []Entry{entry("c-1", 0, "persisted chunk", []float32{0.3, 0.4})}); err != nil {
		t.Fatalf("Add() error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	reopened, err := OpenSQLite(path, log.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer reopened.Close()

	results, err := reopened.Search(ctx, []float32{0.3, 0.4}, 1)
	if err != nil {
		t.Fatalf("Search() after reopen error: %v", err)
	}
	if len(results) != 1 || results[0].Chunk.Text != "persisted chunk" {
		t.Fatalf("entry did not survive reopen: %+v", results)
	}

	// The dimension must survive the restart too.
	err = reopened.Add(ctx, []Entry{entry("c-2", 1, "bad", []float32{1, 2, 3})})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("dimension not restored on reopen: %v", err)
	}
}

func TestSQLite_SecondProcessLockedOut(t *testing.T) {
	s, path := openTestStore(t)
	_ = s

	_, err := OpenSQLite(path, log.Nop())
	if !errors.Is(err, ErrStoreLocked) {
		t.Fatalf("second open = %v, want ErrStoreLocked", err)
	}
}

func TestSQLite_ConcurrentAddAndSearch(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	if err := s.Add(ctx, []Entry{entry("seed", 0, "seed", []float32{1, 0})}); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := entry(fmt.Sprintf("w-%d", i), i+1, "concurrent", []float32{0, 1})
			if err := s.Add(ctx, []Entry{e}); err != nil {
				errs <- err
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := s.Search(ctx, []float32{1, 0}, 5)
			if err != nil {
				errs <- err
				return
			}
			// A search must never observe a half-written entry.
			for _, r := range results {
				if r.Chunk.Text == "" {
					errs <- fmt.Errorf("observed chunk %q with empty content", r.Chunk.ID)
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}
	if n != 17 {
		t.Errorf("Count() = %d, want 17", n)
	}
}

func TestSQLite_Count(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	n, err := s.Count(ctx)
	if err != nil || n != 0 {
		t.Fatalf("Count() = %d, %v; want 0, nil", n, err)
	}

	if err := s.Add(ctx, []Entry{
		entry("c-1", 0, "a", []float32{1, 0}),
		entry("c-2", 1, "b", []float32{0, 1}),
	}); err != nil {
		t.Fatal(err)
	}

	n, err = s.Count(ctx)
	if err != nil || n != 2 {
		t.Fatalf("Count() = %d, %v; want 2, nil", n, err)
	}
}
