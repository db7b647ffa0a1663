package ai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// defaultDimensions maps known embedding model families to their vector
// width. Used as a best guess until the first successful primary response
// reveals the real dimension.
var defaultDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"embeddinggemma":         768,
	"all-minilm":             384,
}

// FallbackDimension is the guess for models not in the table.
const FallbackDimension = 768

// DefaultDimension returns the expected vector width for a model name.
func DefaultDimension(model string) int {
	if d, ok := defaultDimensions[model]; ok {
		return d
	}
	// Tagged variants like "nomic-embed-text:latest".
	if name, _, ok := strings.Cut(model, ":"); ok {
		if d, ok := defaultDimensions[name]; ok {
			return d
		}
	}
	return FallbackDimension
}

// Adapter embeds text through a primary backend with a transparent local
// fallback. Batch calls are paced and order preserving. The adapter learns
// the embedding dimension from the first successful primary response.
type Adapter struct {
	primary       Backend
	fallback      Backend
	batchSize     int
	batchPause    time.Duration
	fallbackPause time.Duration
	logger        *slog.Logger

	mu        sync.Mutex
	dimension int // 0 until discovered
}

var _ Embedder = (*Adapter)(nil)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithFallbackBackend sets the local fallback backend.
func WithFallbackBackend(b Backend) AdapterOption {
	return func(a *Adapter) {
		a.fallback = b
	}
}

// WithPacing sets the pause between batches and before fallback attempts.
func WithPacing(batchPause, fallbackPause time.Duration) AdapterOption {
	return func(a *Adapter) {
		a.batchPause = batchPause
		a.fallbackPause = fallbackPause
	}
}

// WithAdapterBatchSize sets the per-request batch size.
func WithAdapterBatchSize(size int) AdapterOption {
	return func(a *Adapter) {
		if size >= 1 {
			a.batchSize = size
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter creates an adapter over the given primary backend.
func NewAdapter(primary Backend, opts ...AdapterOption) (*Adapter, error) {
	if primary == nil {
		return nil, ErrBackendRequired
	}

	a := &Adapter{
		primary:       primary,
		batchSize:     32,
		batchPause:    200 * time.Millisecond,
		fallbackPause: 500 * time.Millisecond,
		logger:        slog.Default().With("component", "embedding-adapter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Model returns the primary model identifier.
func (a *Adapter) Model() string {
	return a.primary.Model()
}

// Dimension returns the embedding width: the value observed on the first
// successful primary response, or the hard-coded default for the model
// before any call has succeeded.
func (a *Adapter) Dimension() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dimension > 0 {
		return a.dimension
	}
	return DefaultDimension(a.primary.Model())
}

// EmbedText generates one embedding, falling back to the local backend on
// any primary failure. The primary failure is logged, not raised; only a
// failure of both backends reaches the caller.
func (a *Adapter) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.embedWithFallback(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts embeds all texts in fixed-size batches with a short pause
// between batches, preserving input order.
func (a *Adapter) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		if start > 0 {
			if err := pause(ctx, a.batchPause); err != nil {
				return nil, err
			}
		}

		end := min(start+a.batchSize, len(texts))
		vecs, err := a.embedWithFallback(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// embedWithFallback runs one batch against the primary and retries the same
// inputs against the fallback when the primary fails in any way: transport
// error, non-success status, or a response with missing vectors.
func (a *Adapter) embedWithFallback(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := embedChecked(ctx, a.primary, texts)
	if err == nil {
		a.observeDimension(vecs)
		return vecs, nil
	}
	primaryErr := fmt.Errorf("%w: %w", ErrPrimaryBackend, err)

	if a.fallback == nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, primaryErr)
	}

	a.logger.Warn("primary embedding backend failed, using fallback",
		"model", a.primary.Model(), "fallback", a.fallback.Model(), "err", primaryErr)

	if err := pause(ctx, a.fallbackPause); err != nil {
		return nil, err
	}

	vecs, fallbackErr := embedChecked(ctx, a.fallback, texts)
	if fallbackErr != nil {
		return nil, fmt.Errorf("%w: primary: %w; fallback: %w",
			ErrEmbeddingFailed, primaryErr, fallbackErr)
	}
	return vecs, nil
}

// embedChecked calls the backend and validates the response shape: one
// non-empty vector per input, in input order.
func embedChecked(ctx context.Context, b Backend, texts []string) ([][]float32, error) {
	vecs, err := b.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d vectors, got %d",
			ErrEmptyEmbedding, len(texts), len(vecs))
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: vector %d", ErrEmptyEmbedding, i)
		}
	}
	return vecs, nil
}

// observeDimension caches the dimension seen on the first successful
// primary response.
func (a *Adapter) observeDimension(vecs [][]float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dimension == 0 && len(vecs) > 0 {
		a.dimension = len(vecs[0])
	}
}

// pause sleeps with context awareness.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
