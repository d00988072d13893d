package embed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/fleetmech/fleetmech/internal/log"
	"github.com/fleetmech/fleetmech/internal/retry"
)

// fakeService implements embedService. Each input text of the form "t<n>"
// embeds to the vector [n, 0].
type fakeService struct {
	mu        sync.Mutex
	calls     int
	batchLens []int
	failUntil int   // return failErr for the first failUntil calls
	failErr   error
	delay     time.Duration
}

func (f *fakeService) EmbedContent(ctx context.Context, model string, contents []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.batchLens = append(f.batchLens, len(contents))
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if call <= f.failUntil {
		return nil, f.failErr
	}

	resp := &genai.EmbedContentResponse{}
	for _, content := range contents {
		n, err := strconv.Atoi(content.Parts[0].Text[1:])
		if err != nil {
			return nil, fmt.Errorf("unexpected test input: %w", err)
		}
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{
			Values: []float32{float32(n), 0},
		})
	}
	return resp, nil
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "t" + strconv.Itoa(i)
	}
	return out
}

func TestEmbed_OrderPreservedAcrossBatches(t *testing.T) {
	svc := &fakeService{}
	c := newWithService(svc, Config{Model: "m", BatchSize: 4, Retry: fastRetry()}, log.Nop())

	vecs, err := c.Embed(context.Background(), texts(11))
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vecs) != 11 {
		t.Fatalf("got %d vectors, want 11", len(vecs))
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vector %d = %v, out of order", i, v)
		}
	}
	if svc.calls != 3 {
		t.Errorf("API calls = %d, want 3 batches (4+4+3)", svc.calls)
	}
}

func TestEmbed_SingleBatch(t *testing.T) {
	svc := &fakeService{}
	c := newWithService(svc, Config{Model: "m", BatchSize: 50, Retry: fastRetry()}, log.Nop())

	vecs, err := c.Embed(context.Background(), []string{"t7"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vecs) != 1 || vecs[0][0] != 7 {
		t.Fatalf("vecs = %v", vecs)
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	c := newWithService(&fakeService{}, Config{Model: "m", Retry: fastRetry()}, log.Nop())

	vecs, err := c.Embed(context.Background(), nil)
	if err != nil || vecs != nil {
		t.Fatalf("Embed(nil) = %v, %v; want nil, nil", vecs, err)
	}
}

func TestEmbed_RetriesTransientFailure(t *testing.T) {
	svc := &fakeService{failUntil: 2, failErr: errors.New("503 service unavailable")}
	c := newWithService(svc, Config{Model: "m", BatchSize: 50, Retry: fastRetry()}, log.Nop())

	vecs, err := c.Embed(context.Background(), texts(2))
	if err != nil {
		t.Fatalf("Embed() error after retries: %v", err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
	if svc.calls != 3 {
		t.Errorf("API calls = %d, want 3 (two failures then success)", svc.calls)
	}
}

func TestEmbed_SurfacesServiceError(t *testing.T) {
	svc := &fakeService{failUntil: 100, failErr: errors.New("429 rate limit")}
	c := newWithService(svc, Config{Model: "m", BatchSize: 50, Retry: fastRetry()}, log.Nop())

	_, err := c.Embed(context.Background(), texts(1))
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("Embed() error = %v, want ErrEmbeddingService", err)
	}
}

func TestEmbed_PermanentErrorNotRetried(t *testing.T) {
	svc := &fakeService{failUntil: 100, failErr: errors.New("400 invalid argument")}
	c := newWithService(svc, Config{Model: "m", BatchSize: 50, Retry: fastRetry()}, log.Nop())

	_, err := c.Embed(context.Background(), texts(1))
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("Embed() error = %v, want ErrEmbeddingService", err)
	}
	if svc.calls != 1 {
		t.Errorf("API calls = %d, want 1 (no retry on 400)", svc.calls)
	}
}

func TestEmbed_Timeout(t *testing.T) {
	svc := &fakeService{delay: 200 * time.Millisecond}
	c := newWithService(svc, Config{
		Model:     "m",
		BatchSize: 50,
		Timeout:   10 * time.Millisecond,
		Retry:     retry.Policy{MaxAttempts: 1, BaseDelay: time.Millisecond},
	}, log.Nop())

	_, err := c.Embed(context.Background(), texts(1))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Embed() error = %v, want wrapped DeadlineExceeded", err)
	}
	if !errors.Is(err, ErrEmbeddingService) {
		t.Fatalf("Embed() error = %v, want ErrEmbeddingService class", err)
	}
}
