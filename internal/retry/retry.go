// Package retry implements bounded retry with exponential backoff for
// calls to external AI services.
//
// The retry behavior is an explicit Policy value injected into each
// client, not a hidden default inside the wrappers.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// BaseDelay is the delay before the first retry. Each subsequent
	// retry doubles it, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration

	// Jitter adds up to this fraction of the delay as random slack,
	// e.g. 0.2 means the actual sleep is delay * [1.0, 1.2).
	Jitter float64
}

// DefaultPolicy returns sensible defaults for hosted AI APIs.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// retryablePatterns groups error substrings by failure category.
// Matched case-insensitively against err.Error().
//
// NOTE: string matching is used because the genai SDK does not expose
// typed sentinel errors for transient failures. Revisit if the SDK grows
// structured error types.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},             // rate limiting
	{"500", "502", "503", "504", "unavailable"},         // transient server errors
	{"connection reset", "timeout", "temporary", "eof"}, // network errors
}

// Retryable reports whether err looks transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, pat := range group {
			if strings.Contains(msg, pat) {
				return true
			}
		}
	}
	return false
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// policy's attempts are exhausted. The wait between attempts honors ctx
// cancellation. The last error is returned unwrapped inside the %w so
// callers can still match it with errors.Is.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := max(p.MaxAttempts, 1)
	delay := p.BaseDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("canceled during retry wait: %w", ctx.Err())
		case <-time.After(p.withJitter(delay)):
		}
		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func (p Policy) withJitter(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*p.Jitter*float64(d))
}
