// Package ollama implements ai.Backend over a local Ollama daemon, used as
// the fallback path when the primary embedding backend fails.
package ollama

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/calyptra/lodestone/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultTimeout = 60 * time.Second

// Backend embeds text with a model served by a local Ollama daemon.
type Backend struct {
	embedder embeddings.Embedder
	host     string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

var _ ai.Backend = (*Backend)(nil)

// NewBackend creates a backend for the given Ollama host and model.
func NewBackend(host, model string) (ai.Backend, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(host),
		ollama.WithModel(model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Backend{
		embedder: embedder,
		host:     strings.TrimSuffix(host, "/"),
		model:    model,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   slog.Default().With("component", "ollama-backend"),
	}, nil
}

// Model returns the configured model identifier.
func (b *Backend) Model() string {
	return b.model
}

// EmbedText generates a vector embedding for a single text string.
func (b *Backend) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		b.logger.Error("failed to generate embedding", "err", err)
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, ai.ErrEmptyEmbedding
	}
	return vecs[0], nil
}

// EmbedTexts generates vector embeddings for multiple texts.
func (b *Backend) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		b.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	return vecs, nil
}

// Ping checks connectivity against the lightweight /api/tags endpoint
// without running inference.
func (b *Backend) Ping(ctx context.Context) error {
	_, err := b.listModels(ctx)
	return err
}

// HasModel reports whether the configured model is pulled on the daemon.
// Ollama lists models with an explicit tag ("nomic-embed-text:latest"),
// so the match ignores the tag when the configured name carries none.
func (b *Backend) HasModel(ctx context.Context) (bool, error) {
	models, err := b.listModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m == b.model {
			return true, nil
		}
		if name, _, ok := strings.Cut(m, ":"); ok && name == b.model {
			return true, nil
		}
	}
	return false, nil
}

// tagList is Ollama's GET /api/tags response shape.
type tagList struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (b *Backend) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.host+"/api/tags", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create tags request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama ping: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama: status %d: %s", resp.StatusCode, string(body))
	}

	var list tagList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode tags response: %w", err)
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.Name)
	}
	return models, nil
}
