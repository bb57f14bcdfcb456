// Package embed implements the Embedding Client (spec.md §4.6): batched
// embedding requests against an HF-style or OpenAI-style endpoint, with
// retry/backoff tuned to the batch size of the failing request.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Style selects the wire format of the embeddings endpoint.
type Style string

const (
	StyleOpenAI Style = "openai"
	StyleHF     Style = "hf"
)

// longBackoff is used after a failed multi-item batch, where the most
// likely cause is a rate limit that clears slowly.
const longBackoff = 9 * time.Second

// shortBackoff is used after a failed single-item request.
const shortBackoff = 100 * time.Millisecond

// maxRetries bounds retry attempts per batch (spec.md §4.6 "retry up to N times").
const maxRetries = 3

// Backend performs the actual HTTP round trip to an embeddings endpoint.
// Implementations live alongside the provider/capabilities packages; this
// package only owns batching, concurrency and retry policy.
type Backend interface {
	// CreateEmbeddings embeds texts in one request and returns one vector
	// per input text, in input order.
	CreateEmbeddings(ctx context.Context, style Style, model, endpoint, apiKey string, texts []string) ([][]float32, error)
}

// StatusError, when returned by a Backend, lets the Embedder distinguish
// a throttle (503) from a real failure per spec.md §4.6: "A 503 is
// treated as a normal throttle, not an error to log."
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string { return fmt.Sprintf("embedding endpoint status %d: %v", e.StatusCode, e.Err) }
func (e *StatusError) Unwrap() error { return e.Err }

func isThrottle(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode == http.StatusServiceUnavailable
	}
	return false
}

// Embedder batches and retries calls to a Backend.
type Embedder struct {
	backend        Backend
	style          Style
	model          string
	endpoint       string
	apiKey         string
	usageHandler   func(tokens int64)
	batchSize      int
	maxConcurrency int
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithBatchSize sets the batch size for embedding API calls (default: 50).
// Must lie in [1,256] per spec.md §4.5 step 4.
func WithBatchSize(size int) Option {
	return func(e *Embedder) { e.batchSize = size }
}

// WithMaxConcurrency sets the maximum concurrent embedding batch requests (default: 5).
func WithMaxConcurrency(maxConcurrency int) Option {
	return func(e *Embedder) { e.maxConcurrency = maxConcurrency }
}

// New creates an Embedder against the given backend and endpoint.
func New(backend Backend, style Style, model, endpoint, apiKey string, opts ...Option) *Embedder {
	e := &Embedder{
		backend:        backend,
		style:          style,
		model:          model,
		endpoint:       endpoint,
		apiKey:         apiKey,
		batchSize:      50,
		maxConcurrency: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.batchSize < 1 {
		e.batchSize = 1
	}
	if e.batchSize > 256 {
		e.batchSize = 256
	}
	return e
}

// SetUsageHandler sets a callback invoked with the number of texts in
// each successful batch.
func (e *Embedder) SetUsageHandler(h func(tokens int64)) { e.usageHandler = h }

// Embed embeds a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.callWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in parallel batches of e.batchSize, bounded by
// e.maxConcurrency concurrent in-flight requests (spec.md §4.5 step 4).
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	total := len(texts)
	results := make([][]float32, total)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrency)

	for start := 0; start < total; start += e.batchSize {
		end := start + e.batchSize
		if end > total {
			end = total
		}
		start, end := start, end
		g.Go(func() error {
			batch := texts[start:end]
			vecs, err := e.callWithRetry(ctx, batch)
			if err != nil {
				return err
			}
			mu.Lock()
			copy(results[start:end], vecs)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// callWithRetry performs one logical batch call, retrying on failure with
// a backoff sized to the batch (spec.md §4.6).
func (e *Embedder) callWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	backoff := shortBackoff
	if len(texts) > 1 {
		backoff = longBackoff
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		vecs, err := e.backend.CreateEmbeddings(ctx, e.style, e.model, e.endpoint, e.apiKey, texts)
		if err == nil {
			if e.usageHandler != nil {
				e.usageHandler(int64(len(texts)))
			}
			return vecs, nil
		}

		lastErr = err
		if isThrottle(err) {
			slog.Debug("embedding endpoint throttled, retrying", "batch_size", len(texts), "attempt", attempt)
			continue
		}
		slog.Warn("embedding request failed", "batch_size", len(texts), "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("embedding failed after %d attempts: %w", maxRetries+1, lastErr)
}
