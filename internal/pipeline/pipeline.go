// Package pipeline orchestrates retrieval-augmented answering for fleet
// maintenance questions: documents are chunked and embedded into the
// vector store, and queries run embed -> retrieve -> prompt -> generate.
//
// Each query advances through a fixed sequence of states (see State);
// every transition is logged, and a failure in any stage moves the query
// to StateFailed with the stage's error preserved for errors.Is checks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fleetmech/fleetmech/internal/document"
	"github.com/fleetmech/fleetmech/internal/generate"
	"github.com/fleetmech/fleetmech/internal/log"
	"github.com/fleetmech/fleetmech/internal/store"
)

// ErrEmptyQuery is returned when the query is blank.
var ErrEmptyQuery = errors.New("query must not be empty")

// NoContextAnswer is returned verbatim when retrieval finds nothing.
// The generator is not consulted in that case.
const NoContextAnswer = "I could not find relevant information in the maintenance documents to answer this question."

// State identifies a query's position in the pipeline.
type State string

const (
	StateReceived         State = "received"
	StateEmbeddingQuery   State = "embedding_query"
	StateRetrieving       State = "retrieving"
	StateAssemblingPrompt State = "assembling_prompt"
	StateGenerating       State = "generating"
	StateComplete         State = "complete"
	StateFailed           State = "failed"
)

// Embedder turns texts into vectors. Implemented by embed.Client.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces an answer from an assembled prompt. Implemented by
// generate.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (generate.Generation, error)
}

// Processor loads and chunks source documents. Implemented by
// document.Processor.
type Processor interface {
	Process(path string) (document.Document, []document.Chunk, error)
}

// Source describes one retrieved chunk backing an answer.
type Source struct {
	Text           string  `json:"text"`
	SourceDocument string  `json:"source_document"`
	Score          float64 `json:"score"`
}

// Answer is the result of a completed query.
type Answer struct {
	Answer     string   `json:"answer"`
	Confidence float64  `json:"confidence"`
	Sources    []Source `json:"sources"`
}

// Options tune per-pipeline retrieval behavior.
type Options struct {
	// TopK is the number of chunks retrieved per query.
	TopK int

	// MaxContextLength caps the assembled prompt, in runes.
	MaxContextLength int
}

// Pipeline wires the document processor, embedder, store, and generator
// into the ingest and query paths.
type Pipeline struct {
	processor Processor
	embedder  Embedder
	store     store.Store
	generator Generator
	opts      Options
	logger    log.Logger
}

// New creates a Pipeline from its collaborators.
func New(processor Processor, embedder Embedder, st store.Store, generator Generator, opts Options, logger log.Logger) *Pipeline {
	if logger == nil {
		logger = log.Nop()
	}
	if opts.TopK < 1 {
		opts.TopK = 5
	}
	if opts.MaxContextLength < 1 {
		opts.MaxContextLength = 4000
	}
	return &Pipeline{
		processor: processor,
		embedder:  embedder,
		store:     st,
		generator: generator,
		opts:      opts,
		logger:    logger,
	}
}

// Ingest loads a source file, chunks it, embeds every chunk, and
// persists the results. It returns the IDs of the stored chunks.
// Re-ingesting the same file stores fresh chunks under new IDs.
func (p *Pipeline) Ingest(ctx context.Context, path string) ([]string, error) {
	start := time.Now()

	doc, chunks, err := p.processor.Process(path)
	if err != nil {
		return nil, fmt.Errorf("processing %s: %w", path, err)
	}
	if len(chunks) == 0 {
		p.logger.Warn("document produced no chunks", "source", path)
		return nil, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %d chunks from %s: %w", len(chunks), path, err)
	}

	entries := make([]store.Entry, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		entries[i] = store.Entry{Chunk: c, Embedding: vectors[i]}
		ids[i] = c.ID
	}
	if err := p.store.Add(ctx, entries); err != nil {
		return nil, fmt.Errorf("storing chunks from %s: %w", path, err)
	}

	p.logger.Info("ingested document",
		"source", doc.Source, "format", doc.Format,
		"chunks", len(chunks), "elapsed", time.Since(start))
	return ids, nil
}

// Query answers a question against the ingested documents using the
// configured retrieval depth.
func (p *Pipeline) Query(ctx context.Context, query string) (Answer, error) {
	return p.QueryTopK(ctx, query, p.opts.TopK)
}

// QueryTopK answers a question retrieving up to topK chunks. A
// non-positive topK falls back to the configured default.
func (p *Pipeline) QueryTopK(ctx context.Context, query string, topK int) (Answer, error) {
	if topK < 1 {
		topK = p.opts.TopK
	}
	q := &tracked{id: uuid.NewString(), state: StateReceived, logger: p.logger}
	p.logger.Info("query received", "query_id", q.id, "length", len(query))

	if query == "" {
		return Answer{}, q.fail(ErrEmptyQuery)
	}

	q.advance(StateEmbeddingQuery)
	vectors, err := p.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Answer{}, q.fail(fmt.Errorf("embedding query: %w", err))
	}

	q.advance(StateRetrieving)
	results, err := p.store.Search(ctx, vectors[0], topK)
	if err != nil {
		return Answer{}, q.fail(fmt.Errorf("retrieving context: %w", err))
	}
	if len(results) == 0 {
		q.advance(StateComplete)
		p.logger.Info("query answered without context", "query_id", q.id)
		return Answer{Answer: NoContextAnswer, Confidence: 0, Sources: []Source{}}, nil
	}

	q.advance(StateAssemblingPrompt)
	prompt, included, err := generate.BuildPrompt(query, results, p.opts.MaxContextLength)
	if err != nil {
		return Answer{}, q.fail(fmt.Errorf("assembling prompt: %w", err))
	}
	if included < len(results) {
		p.logger.Debug("context truncated",
			"query_id", q.id, "retrieved", len(results), "included", included)
	}

	q.advance(StateGenerating)
	gen, err := p.generator.Generate(ctx, prompt)
	if err != nil {
		return Answer{}, q.fail(fmt.Errorf("generating answer: %w", err))
	}

	q.advance(StateComplete)
	answer := Answer{
		Answer:     gen.Text,
		Confidence: confidence(results),
		Sources:    sources(results),
	}
	p.logger.Info("query complete",
		"query_id", q.id, "confidence", answer.Confidence,
		"sources", len(answer.Sources), "output_tokens", gen.Usage.OutputTokens)
	return answer, nil
}

// confidence maps the top result's cosine similarity onto [0, 1]. A
// higher best similarity always yields an equal or higher confidence.
func confidence(results []store.Result) float64 {
	top := results[0].Score
	if top < 0 {
		return 0
	}
	if top > 1 {
		return 1
	}
	return top
}

func sources(results []store.Result) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		out[i] = Source{
			Text:           r.Chunk.Text,
			SourceDocument: r.Chunk.Source,
			Score:          r.Score,
		}
	}
	return out
}

// tracked carries one query's identity and state through the pipeline.
type tracked struct {
	id     string
	state  State
	logger log.Logger
}

func (t *tracked) advance(next State) {
	t.logger.Debug("query state transition",
		"query_id", t.id, "from", string(t.state), "to", string(next))
	t.state = next
}

// fail moves the query to the terminal failed state and tags the error
// with the stage it died in. The cause stays reachable via errors.Is.
func (t *tracked) fail(err error) error {
	failedIn := t.state
	t.advance(StateFailed)
	t.logger.Error("query failed",
		"query_id", t.id, "stage", string(failedIn), "error", err)
	return fmt.Errorf("query %s failed during %s: %w", t.id, failedIn, err)
}
