package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings.
	// The returned slice contains embeddings in the same order as the input
	// texts. Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Backend is one concrete embedding service: a model hosted behind an API.
// The Adapter composes a primary and a fallback Backend.
type Backend interface {
	Embedder

	// Model returns the model identifier this backend embeds with.
	Model() string

	// Ping reports whether the backend is reachable at all.
	Ping(ctx context.Context) error

	// HasModel reports whether the configured model is present on the
	// backend.
	HasModel(ctx context.Context) (bool, error)
}
