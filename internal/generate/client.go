// Package generate produces grounded answers with the Gemini API. It
// assembles prompts from retrieved context and keeps generation
// deterministic enough for maintenance advice (low temperature, bounded
// output).
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/fleetmech/fleetmech/internal/log"
	"github.com/fleetmech/fleetmech/internal/retry"
)

// ErrGenerationService indicates the generation API failed after retries.
var ErrGenerationService = errors.New("generation service failure")

// ErrEmptyResponse indicates the model returned no usable text.
var ErrEmptyResponse = errors.New("generation returned no text")

// generateService is the slice of *genai.Models the client depends on.
type generateService interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Config holds generation client settings.
type Config struct {
	// Model is the generation model identifier.
	Model string

	// Temperature controls sampling randomness. Kept low so answers stay
	// close to the retrieved context.
	Temperature float32

	// MaxOutputTokens bounds the length of the generated answer
	// (0 = model default).
	MaxOutputTokens int32

	// Timeout bounds each API call.
	Timeout time.Duration

	// RateLimit is the maximum API calls per second (0 = unlimited).
	RateLimit float64

	// Retry is the backoff policy for transient failures.
	Retry retry.Policy
}

// Usage reports token consumption for one generation.
type Usage struct {
	PromptTokens int32
	OutputTokens int32
}

// Generation is the result of one model call.
type Generation struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// Client is a text generation client backed by the Gemini API.
type Client struct {
	service generateService
	cfg     Config
	limiter *rate.Limiter
	logger  log.Logger
}

// New creates a Client on top of an initialized genai client.
func New(client *genai.Client, cfg Config, logger log.Logger) *Client {
	return newWithService(client.Models, cfg, logger)
}

func newWithService(service generateService, cfg Config, logger log.Logger) *Client {
	if logger == nil {
		logger = log.Nop()
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

// Generate sends the prompt to the model and returns the generated text
// with its finish reason and token usage. Transient failures are retried
// per the configured policy.
func (c *Client) Generate(ctx context.Context, prompt string) (Generation, error) {
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	temp := c.cfg.Temperature
	cfg := &genai.GenerateContentConfig{Temperature: &temp}
	if c.cfg.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = c.cfg.MaxOutputTokens
	}

	var resp *genai.GenerateContentResponse
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
		resp, callErr = c.service.GenerateContent(callCtx, c.cfg.Model, contents, cfg)
		if callErr != nil && errors.Is(callErr, context.DeadlineExceeded) {
			return fmt.Errorf("generation request timeout after %v: %w", c.cfg.Timeout, callErr)
		}
		return callErr
	})
	if err != nil {
		return Generation{}, fmt.Errorf("%w: %w", ErrGenerationService, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return Generation{}, fmt.Errorf("%w: %w", ErrGenerationService, ErrEmptyResponse)
	}

	gen := Generation{Text: text}
	if len(resp.Candidates) > 0 {
		gen.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		gen.Usage = Usage{
			PromptTokens: resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
		}
	}

	c.logger.Debug("generated answer",
		"model", c.cfg.Model,
		"finish_reason", gen.FinishReason,
		"prompt_tokens", gen.Usage.PromptTokens,
		"output_tokens", gen.Usage.OutputTokens,
		"elapsed", time.Since(start))
	return gen, nil
}
