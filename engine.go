// Copyright 2025 Calyptra Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package lodestone

import (
	"context"
	"log/slog"
	"sync"

	"github.com/calyptra/lodestone/ai"
	"github.com/calyptra/lodestone/ai/ollama"
	"github.com/calyptra/lodestone/ai/openai"
	"github.com/calyptra/lodestone/chunk"
	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/fetch"
	"github.com/calyptra/lodestone/jobs"
	"github.com/calyptra/lodestone/retrieval"
	"github.com/calyptra/lodestone/storage"
	"github.com/calyptra/lodestone/storage/badger"
)

// BackendFactory builds the primary and fallback embedding backends for a
// model. A nil fallback means the model runs without one.
type BackendFactory func(model string) (primary, fallback ai.Backend, err error)

// Engine wires storage, fetching, ingestion jobs and retrieval into one
// handle. Sources are registered with the embedding model that indexes
// them; each model gets its own adapter and vector collection.
type Engine struct {
	backend   *badger.Backend
	vectors   storage.VectorRepository
	chunks    storage.ChunkRepository
	registry  *fetch.Registry
	router    *retrieval.Router
	manager   *jobs.Manager
	retriever *retrieval.Retriever

	backends     BackendFactory
	aiConfig     *ai.Config
	defaultModel string
	logger       *slog.Logger

	mu       sync.Mutex
	adapters map[string]*modelEmbedder
}

// modelEmbedder pairs an adapter with its memo cache. The cache fronts the
// embed calls; model identity and dimension come from the adapter.
type modelEmbedder struct {
	*ai.Adapter
	cache ai.Embedder
}

func (e *modelEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return e.cache.EmbedText(ctx, text)
}

func (e *modelEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return e.cache.EmbedTexts(ctx, texts)
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	aiConfig     *ai.Config
	apiToken     string
	factory      BackendFactory
	chunkConfig  *chunk.Config
	threshold    *float32
	poolSize     int
	defaultModel string
	inMemory     bool
}

// WithAIConfig sets the embedding backend configuration.
func WithAIConfig(cfg *ai.Config) EngineOption {
	return func(o *engineOptions) {
		o.aiConfig = cfg
	}
}

// WithAPIToken sets the bearer token for the primary embedding API.
func WithAPIToken(token string) EngineOption {
	return func(o *engineOptions) {
		o.apiToken = token
	}
}

// WithBackendFactory overrides how embedding backends are built per model.
func WithBackendFactory(factory BackendFactory) EngineOption {
	return func(o *engineOptions) {
		o.factory = factory
	}
}

// WithChunkConfig sets the chunking parameters for ingestion jobs.
func WithChunkConfig(cfg chunk.Config) EngineOption {
	return func(o *engineOptions) {
		o.chunkConfig = &cfg
	}
}

// WithScoreThreshold sets the minimum similarity for retrieval results.
func WithScoreThreshold(threshold float32) EngineOption {
	return func(o *engineOptions) {
		o.threshold = &threshold
	}
}

// WithJobPoolSize sets how many ingestion jobs may run concurrently.
func WithJobPoolSize(size int) EngineOption {
	return func(o *engineOptions) {
		o.poolSize = size
	}
}

// WithDefaultModel sets the model used for sources registered without one.
func WithDefaultModel(model string) EngineOption {
	return func(o *engineOptions) {
		o.defaultModel = model
	}
}

// WithInMemoryStorage keeps all data in memory, for tests and throwaway
// instances. The file path passed to NewEngine is ignored.
func WithInMemoryStorage() EngineOption {
	return func(o *engineOptions) {
		o.inMemory = true
	}
}

// NewEngine opens the store at filePath and assembles the full pipeline.
func NewEngine(filePath string, opts ...EngineOption) (*Engine, error) {
	o := &engineOptions{
		aiConfig:     ai.DefaultConfig(),
		defaultModel: "nomic-embed-text",
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.aiConfig.Validate(); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, o.inMemory)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		backend:      backend,
		vectors:      badger.NewVectorRepository(backend),
		chunks:       badger.NewChunkRepository(backend),
		registry:     fetch.NewRegistry(),
		router:       retrieval.NewRouter(),
		backends:     o.factory,
		aiConfig:     o.aiConfig,
		defaultModel: o.defaultModel,
		logger:       slog.Default().With("component", "engine"),
		adapters:     make(map[string]*modelEmbedder),
	}
	if e.backends == nil {
		e.backends = configBackendFactory(o.aiConfig, o.apiToken)
	}

	managerOpts := []jobs.ManagerOption{jobs.WithDefaultModel(o.defaultModel)}
	if o.chunkConfig != nil {
		managerOpts = append(managerOpts, jobs.WithChunkConfig(*o.chunkConfig))
	}
	if o.poolSize >= 1 {
		managerOpts = append(managerOpts, jobs.WithPoolSize(o.poolSize))
	}

	manager, err := jobs.NewManager(e.registry, e.vectors, e.chunks,
		func(model string) (jobs.Embedder, error) { return e.adapterFor(model) },
		managerOpts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	e.manager = manager

	var retrieverOpts []retrieval.RetrieverOption
	if o.threshold != nil {
		retrieverOpts = append(retrieverOpts, retrieval.WithScoreThreshold(*o.threshold))
	}
	e.retriever = retrieval.NewRetriever(e.router, e.vectors,
		func(model string) (retrieval.Embedder, error) { return e.adapterFor(model) },
		retrieverOpts...)

	return e, nil
}

// configBackendFactory builds backends from the ai configuration: an
// OpenAI-compatible primary for the requested model and a shared Ollama
// fallback.
func configBackendFactory(cfg *ai.Config, token string) BackendFactory {
	return func(model string) (ai.Backend, ai.Backend, error) {
		primary, err := openai.NewBackend(cfg.PrimaryHost, model, token)
		if err != nil {
			return nil, nil, err
		}

		var fallback ai.Backend
		if cfg.FallbackHost != "" && cfg.FallbackModel != "" {
			fallback, err = ollama.NewBackend(cfg.FallbackHost, cfg.FallbackModel)
			if err != nil {
				return nil, nil, err
			}
		}
		return primary, fallback, nil
	}
}

// adapterFor returns the memoized embedder for a model, building it on
// first use. Jobs and queries against the same model share one adapter, so
// dimension discovery and the embedding cache carry across both paths.
func (e *Engine) adapterFor(model string) (*modelEmbedder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if emb, ok := e.adapters[model]; ok {
		return emb, nil
	}

	primary, fallback, err := e.backends(model)
	if err != nil {
		return nil, err
	}

	adapterOpts := []ai.AdapterOption{
		ai.WithAdapterBatchSize(e.aiConfig.BatchSize),
		ai.WithPacing(e.aiConfig.BatchPause, e.aiConfig.FallbackPause),
	}
	if fallback != nil {
		adapterOpts = append(adapterOpts, ai.WithFallbackBackend(fallback))
	}

	adapter, err := ai.NewAdapter(primary, adapterOpts...)
	if err != nil {
		return nil, err
	}

	emb := &modelEmbedder{
		Adapter: adapter,
		cache:   ai.NewCachingEmbedder(adapter, e.aiConfig.CacheSize),
	}
	e.adapters[model] = emb
	return emb, nil
}

// RegisterSource registers a fetcher and routes its source to the given
// embedding model. An empty model means the default model.
func (e *Engine) RegisterSource(f fetch.Fetcher, model string) {
	if model == "" {
		model = e.defaultModel
	}
	e.registry.Register(f)
	e.router.SetRoute(f.Source(), model)
}

// Sources returns the registered source tags, sorted.
func (e *Engine) Sources() []string {
	return e.registry.Sources()
}

// Ingest creates an ingestion job over the given sources and returns its
// id. The job runs asynchronously; poll Job for progress.
func (e *Engine) Ingest(sources, keywords, extraURLs []string, model string) (string, error) {
	return e.manager.Create(sources, keywords, extraURLs, model)
}

// Job returns a snapshot of an ingestion job.
func (e *Engine) Job(id string) (*core.Job, error) {
	return e.manager.Get(id)
}

// CancelJob cancels a running ingestion job. Returns true when the job was
// running and is now marked failed.
func (e *Engine) CancelJob(id string) bool {
	return e.manager.Cancel(id)
}

// Search answers a query against the given sources, or against every
// registered source when none are named.
func (e *Engine) Search(ctx context.Context, query string, k int, sources ...string) ([]*core.SearchResult, error) {
	return e.retriever.Search(ctx, query, k, sources...)
}

// SearchContext runs Search and renders the results into one bounded,
// attributed text block for prompt construction.
func (e *Engine) SearchContext(ctx context.Context, query string, k, maxLen int, sources ...string) (string, error) {
	results, err := e.retriever.Search(ctx, query, k, sources...)
	if err != nil {
		return "", err
	}
	return retrieval.BuildContext(results, maxLen), nil
}

// DeleteSource removes everything indexed for a source: its vectors from
// the collection its model routes to, and its persisted chunks. Returns the
// number of vector records removed.
func (e *Engine) DeleteSource(ctx context.Context, source string) (int, error) {
	model, err := e.router.ModelFor(source)
	if err != nil {
		return 0, err
	}

	removed, err := e.vectors.DeleteBySource(ctx, storage.CollectionForModel(model), source)
	if err != nil {
		return 0, err
	}

	chunksRemoved, err := e.chunks.DeleteChunks(ctx, source)
	if err != nil {
		return removed, err
	}

	e.logger.Info("source deleted",
		"source", source, "vectors", removed, "chunks", chunksRemoved)
	return removed, nil
}

// Health probes the embedding backends for the default model.
func (e *Engine) Health(ctx context.Context) (ai.Health, error) {
	emb, err := e.adapterFor(e.defaultModel)
	if err != nil {
		return ai.Health{}, err
	}
	return emb.CheckHealth(ctx), nil
}

// VectorRepository exposes the underlying vector store.
func (e *Engine) VectorRepository() storage.VectorRepository {
	return e.vectors
}

// ChunkRepository exposes the underlying chunk store.
func (e *Engine) ChunkRepository() storage.ChunkRepository {
	return e.chunks
}

// Close stops the job manager and closes the store. Running jobs are
// cancelled.
func (e *Engine) Close() error {
	if err := e.manager.Close(); err != nil {
		e.logger.Error("error closing job manager", "err", err)
	}

	if err := e.vectors.Close(); err != nil {
		e.logger.Error("error closing vector repository", "err", err)
		return err
	}
	if err := e.chunks.Close(); err != nil {
		e.logger.Error("error closing chunk repository", "err", err)
		return err
	}

	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}
