// Package mock provides test doubles for ai interfaces.
package mock

import (
	"context"
	"hash/fnv"
)

// Embedder is a test double for ai.Backend.
// It allows custom behavior injection via function fields.
type Embedder struct {
	// ModelName is returned by Model. Defaults to "mock-embed".
	ModelName string

	// Dim is the width of generated vectors. Defaults to 384.
	Dim int

	// EmbedTextFunc is called by EmbedText if set.
	EmbedTextFunc func(ctx context.Context, text string) ([]float32, error)

	// EmbedTextsFunc is called by EmbedTexts if set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// PingErr is returned by Ping.
	PingErr error

	// HasModelResult is returned by HasModel.
	HasModelResult bool

	callCount int
}

// NewEmbedder creates a mock embedder with deterministic default behavior.
// Returns the concrete type to allow test assertions.
func NewEmbedder() *Embedder {
	return &Embedder{HasModelResult: true}
}

// Model returns the mock model name.
func (m *Embedder) Model() string {
	if m.ModelName == "" {
		return "mock-embed"
	}
	return m.ModelName
}

// EmbedText generates a deterministic embedding based on text hash.
func (m *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	m.callCount++

	if m.EmbedTextFunc != nil {
		return m.EmbedTextFunc(ctx, text)
	}
	return DeterministicVector(text, m.dim()), nil
}

// EmbedTexts generates deterministic embeddings for multiple texts.
func (m *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.callCount++

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = DeterministicVector(text, m.dim())
	}
	return vecs, nil
}

// Ping returns PingErr.
func (m *Embedder) Ping(ctx context.Context) error {
	return m.PingErr
}

// HasModel returns HasModelResult.
func (m *Embedder) HasModel(ctx context.Context) (bool, error) {
	return m.HasModelResult, m.PingErr
}

// CallCount returns the number of embed calls made.
func (m *Embedder) CallCount() int {
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *Embedder) Reset() {
	m.callCount = 0
	m.EmbedTextFunc = nil
	m.EmbedTextsFunc = nil
}

func (m *Embedder) dim() int {
	if m.Dim > 0 {
		return m.Dim
	}
	return 384
}

// DeterministicVector creates a unit-normalized embedding vector from text.
// The same text always produces the same vector.
func DeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}

	var sumSquares float32
	for _, v := range vector {
		sumSquares += v * v
	}
	if sumSquares > 0 {
		norm := float32(1.0) / float32(sumSquares)
		for i := range vector {
			vector[i] *= norm
		}
	}
	return vector
}
