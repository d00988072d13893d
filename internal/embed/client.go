// Package embed converts text into fixed-length vectors using the Gemini
// embedding API.
//
// Requests are batched, rate limited, and retried with exponential
// backoff. Batches run concurrently, but results always come back in
// input order.
package embed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/fleetmech/fleetmech/internal/log"
	"github.com/fleetmech/fleetmech/internal/retry"
)

// ErrEmbeddingService indicates the embedding API failed after retries.
var ErrEmbeddingService = errors.New("embedding service failure")

// embedService is the slice of *genai.Models the client depends on.
// Defining the interface here keeps the client testable without the SDK.
type embedService interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config holds embedding client settings.
type Config struct {
	// Model is the embedding model identifier.
	Model string

	// Dimension pins OutputDimensionality so the vector store sees a
	// stable dimensionality regardless of the model's default.
	Dimension int32

	// BatchSize is the maximum number of texts per API call.
	BatchSize int

	// Timeout bounds each API call.
	Timeout time.Duration

	// RateLimit is the maximum API calls per second (0 = unlimited).
	RateLimit float64

	// Retry is the backoff policy for transient failures.
	Retry retry.Policy
}

// Client is an embedding client backed by the Gemini API.
type Client struct {
	service embedService
	cfg     Config
	limiter *rate.Limiter
	logger  log.Logger
}

// New creates a Client on top of an initialized genai client.
func New(client *genai.Client, cfg Config, logger log.Logger) *Client {
	return newWithService(client.Models, cfg, logger)
}

func newWithService(service embedService, cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 50
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Client{
		service: service,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Embed returns one vector per input text, in matching order. Inputs are
// split into batches of at most BatchSize; batches are dispatched
// concurrently and reassembled by offset before returning.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for offset := 0; offset < len(texts); offset += c.cfg.BatchSize {
		batch := texts[offset:min(offset+c.cfg.BatchSize, len(texts))]
		wg.Add(1)
		go func(offset int, batch []string) {
			defer wg.Done()
			vecs, err := c.embedBatch(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			copy(vectors[offset:], vecs)
		}(offset, batch)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// embedBatch performs one rate-limited, retried API call.
func (c *Client) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(batch))
	for i, text := range batch {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	var cfg *genai.EmbedContentConfig
	if c.cfg.Dimension > 0 {
		dim := c.cfg.Dimension
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	var resp *genai.EmbedContentResponse
	start := time.Now()
	err := c.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}

		callCtx := ctx
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		var callErr error
		resp, callErr = c.service.EmbedContent(callCtx, c.cfg.Model, contents, cfg)
		if callErr != nil && errors.Is(callErr, context.DeadlineExceeded) {
			return fmt.Errorf("embedding request timeout after %v: %w", c.cfg.Timeout, callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingService, err)
	}

	if len(resp.Embeddings) != len(batch) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			ErrEmbeddingService, len(resp.Embeddings), len(batch))
	}
	vecs := make([][]float32, len(batch))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbeddingService, i)
		}
		vecs[i] = emb.Values
	}

	c.logger.Debug("embedded batch",
		"texts", len(batch), "dimension", len(vecs[0]), "elapsed", time.Since(start))
	return vecs, nil
}
