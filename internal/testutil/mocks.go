// Package testutil provides hand-rolled mocks for the pipeline's
// collaborators. Each mock records its calls and returns canned values
// or errors set by the test.
package testutil

import (
	"context"
	"sync"

	"github.com/fleetmech/fleetmech/internal/document"
	"github.com/fleetmech/fleetmech/internal/generate"
	"github.com/fleetmech/fleetmech/internal/store"
)

// MockEmbedder returns a fixed vector per text, or Err if set.
type MockEmbedder struct {
	mu     sync.Mutex
	Calls  [][]string
	Vector []float32
	// VectorFor overrides Vector for specific texts.
	VectorFor map[string][]float32
	Err       error
}

func (m *MockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, texts)
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.VectorFor[t]; ok {
			out[i] = v
		} else {
			out[i] = m.Vector
		}
	}
	return out, nil
}

func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// MockGenerator returns Reply, or Err if set. When Block is non-nil it
// waits for ctx cancellation first, simulating a stalled model call.
type MockGenerator struct {
	mu      sync.Mutex
	Prompts []string
	Reply   string
	Err     error
	Block   func(ctx context.Context) error
}

func (m *MockGenerator) Generate(ctx context.Context, prompt string) (generate.Generation, error) {
	m.mu.Lock()
	m.Prompts = append(m.Prompts, prompt)
	m.mu.Unlock()

	if m.Block != nil {
		if err := m.Block(ctx); err != nil {
			return generate.Generation{}, err
		}
	}
	if m.Err != nil {
		return generate.Generation{}, m.Err
	}
	return generate.Generation{Text: m.Reply, FinishReason: "STOP"}, nil
}

func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Prompts)
}

// MockStore serves canned search results and records added entries.
type MockStore struct {
	mu        sync.Mutex
	Added     []store.Entry
	Results   []store.Result
	AddErr    error
	SearchErr error
}

func (m *MockStore) Add(_ context.Context, entries []store.Entry) error {
	if m.AddErr != nil {
		return m.AddErr
	}
	m.mu.Lock()
	m.Added = append(m.Added, entries...)
	m.mu.Unlock()
	return nil
}

func (m *MockStore) Search(_ context.Context, _ []float32, topK int) ([]store.Result, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if len(m.Results) > topK {
		return m.Results[:topK], nil
	}
	return m.Results, nil
}

func (m *MockStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Added) + len(m.Results)), nil
}

func (m *MockStore) Close() error { return nil }

// MockProcessor returns canned chunks for any path.
type MockProcessor struct {
	Doc    document.Document
	Chunks []document.Chunk
	Err    error
}

func (m *MockProcessor) Process(path string) (document.Document, []document.Chunk, error) {
	if m.Err != nil {
		return document.Document{}, nil, m.Err
	}
	doc := m.Doc
	if doc.Source == "" {
		doc.Source = path
	}
	return doc, m.Chunks, nil
}
