package cmd

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/fleetmech/fleetmech/internal/config"
	"github.com/fleetmech/fleetmech/internal/document"
	"github.com/fleetmech/fleetmech/internal/embed"
	"github.com/fleetmech/fleetmech/internal/generate"
	"github.com/fleetmech/fleetmech/internal/log"
	"github.com/fleetmech/fleetmech/internal/pipeline"
	"github.com/fleetmech/fleetmech/internal/retry"
	"github.com/fleetmech/fleetmech/internal/store"
)

// app holds the wired pipeline and the resources it owns.
type app struct {
	pipeline *pipeline.Pipeline
	store    store.Store
}

// setup loads and validates configuration, then wires the full pipeline:
// processor, Gemini clients, and the configured vector store.
func setup(ctx context.Context, logger log.Logger) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	policy := retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
		Jitter:      0.2,
	}

	embedder := embed.New(client, embed.Config{
		Model:     cfg.EmbedderModel,
		Dimension: cfg.EmbedDimension,
		BatchSize: cfg.EmbedBatchSize,
		Timeout:   cfg.RequestTimeout,
		RateLimit: cfg.EmbedRateLimit,
		Retry:     policy,
	}, logger)

	generator := generate.New(client, generate.Config{
		Model:           cfg.ModelName,
		Temperature:     0.1,
		MaxOutputTokens: 2048,
		Timeout:         cfg.RequestTimeout,
		Retry:           policy,
	}, logger)

	processor := document.NewProcessor(cfg.ChunkSize, cfg.ChunkOverlap, logger)

	p := pipeline.New(processor, embedder, st, generator, pipeline.Options{
		TopK:             cfg.TopK,
		MaxContextLength: cfg.MaxContextLength,
	}, logger)

	return &app{pipeline: p, store: st}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger log.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		st, err := store.OpenSQLite(cfg.StorePath, logger)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store %s: %w", cfg.StorePath, err)
		}
		return st, nil
	case config.DriverPostgres:
		st, err := store.OpenPostgres(ctx, cfg.DatabaseURL, int(cfg.EmbedDimension), logger)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrInvalidStoreDriver, cfg.StoreDriver)
	}
}

// Close releases the store (and its file lock, for sqlite).
func (a *app) Close() error {
	return a.store.Close()
}
