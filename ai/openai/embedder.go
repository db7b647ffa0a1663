// Package openai implements ai.Backend over OpenAI-compatible embedding APIs.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/calyptra/lodestone/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultTimeout = 30 * time.Second

// Backend embeds text via an OpenAI-compatible API (OpenAI itself, or a
// local daemon such as Ollama/vLLM behind its /v1 surface).
type Backend struct {
	embedder embeddings.Embedder
	host     string
	model    string
	client   *http.Client
	logger   *slog.Logger
}

var _ ai.Backend = (*Backend)(nil)

// NewBackend creates a backend for the given OpenAI-compatible host and
// embedding model. An empty token is replaced with "none" for local
// services that do not require authentication.
func NewBackend(host, model, token string) (ai.Backend, error) {
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Backend{
		embedder: embedder,
		host:     host,
		model:    model,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   slog.Default().With("component", "openai-backend"),
	}, nil
}

// Model returns the configured embedding model identifier.
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

// EmbedTexts generates vector embeddings for multiple texts in one request.
func (b *Backend) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	b.logger.Debug("generating embeddings", "count", len(texts))

	vecs, err := b.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		b.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}
	return vecs, nil
}

// Ping validates that the API answers its model listing endpoint.
func (b *Backend) Ping(ctx context.Context) error {
	_, err := b.listModels(ctx)
	return err
}

// HasModel reports whether the configured model appears in the backend's
// model listing.
func (b *Backend) HasModel(ctx context.Context) (bool, error) {
	models, err := b.listModels(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range models {
		if m == b.model {
			return true, nil
		}
	}
	return false, nil
}

// modelList is the OpenAI-compatible GET /models response shape.
type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (b *Backend) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.host+"/models", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create models request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("list models: status %d: %s", resp.StatusCode, string(body))
	}

	var list modelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode models response: %w", err)
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		models = append(models, m.ID)
	}
	return models, nil
}
