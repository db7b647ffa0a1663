package lodestone_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/calyptra/lodestone"
	"github.com/calyptra/lodestone/ai"
	"github.com/calyptra/lodestone/ai/mock"
	"github.com/calyptra/lodestone/chunk"
	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/fetch"
	"github.com/calyptra/lodestone/retrieval"
	"github.com/calyptra/lodestone/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackends serves every model with a deterministic 8-dimensional
// embedder, so identical text always embeds to the identical vector.
func mockBackends(model string) (ai.Backend, ai.Backend, error) {
	primary := mock.NewEmbedder()
	primary.ModelName = model
	primary.Dim = 8
	return primary, nil, nil
}

func newTestEngine(t *testing.T, opts ...lodestone.EngineOption) *lodestone.Engine {
	t.Helper()

	cfg := ai.DefaultConfig()
	cfg.BatchPause = 0
	cfg.FallbackPause = 0

	opts = append([]lodestone.EngineOption{
		lodestone.WithInMemoryStorage(),
		lodestone.WithAIConfig(cfg),
		lodestone.WithBackendFactory(mockBackends),
	}, opts...)

	engine, err := lodestone.NewEngine("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine
}

func waitForJob(t *testing.T, engine *lodestone.Engine, id string) *core.Job {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := engine.Job(id)
		require.NoError(t, err)
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("job did not reach a terminal state")
	return nil
}

func ingestAndWait(t *testing.T, engine *lodestone.Engine, sources ...string) *core.Job {
	t.Helper()

	id, err := engine.Ingest(sources, nil, nil, "")
	require.NoError(t, err)
	job := waitForJob(t, engine, id)
	require.Equal(t, core.JobCompleted, job.Status, "job error: %s", job.Error)
	return job
}

// TestEngineEndToEnd walks the whole pipeline: a 2,500-character document
// chunked at size 1000 with overlap 200 yields three chunks, each embedded
// into a freshly provisioned 8-dimensional collection; querying with the
// middle chunk's own text at a 0.99 threshold returns that chunk first with
// a perfect score.
func TestEngineEndToEnd(t *testing.T) {
	engine := newTestEngine(t,
		lodestone.WithChunkConfig(chunk.Config{ChunkSize: 1000, Overlap: 200}),
		lodestone.WithScoreThreshold(0.99),
	)

	// Aperiodic relative to the 800-character window step, so every chunk's
	// text is distinct.
	content := strings.Repeat("abcdefg", 358)[:2500]
	engine.RegisterSource(fetch.NewStaticFetcher("docs", core.DocTypeText, []core.RawDocument{
		{ID: "doc-1", Title: "Guide", URL: "https://example.com/guide", Content: content, Source: "docs"},
	}), "")

	job := ingestAndWait(t, engine, "docs")
	assert.Equal(t, 1, job.Progress.TotalDocs)
	assert.Equal(t, 1, job.Progress.Processed)
	assert.Empty(t, job.Warnings)

	ctx := context.Background()

	persisted, err := engine.ChunkRepository().LoadChunks(ctx, "docs")
	require.NoError(t, err)
	require.Len(t, persisted, 3)

	var middle *core.Chunk
	for i := range persisted {
		if persisted[i].Metadata.ChunkIndex == 1 {
			middle = &persisted[i]
		}
	}
	require.NotNil(t, middle)

	collection := storage.CollectionForModel("nomic-embed-text")
	count, err := engine.VectorRepository().Count(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	manifest, err := engine.VectorRepository().Manifest(ctx, collection)
	require.NoError(t, err)
	assert.Equal(t, 8, manifest.Dimension)
	assert.Equal(t, storage.RepFloat32, manifest.Representation)

	// The query embeds to exactly the middle chunk's vector, so that chunk
	// scores 1.0 and survives the 0.99 threshold.
	results, err := engine.Search(ctx, middle.Text, 5, "docs")
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, middle.Text, results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
	assert.Equal(t, "docs", results[0].Source)
	assert.Equal(t, "Guide", results[0].Metadata["title"])
	assert.Equal(t, "https://example.com/guide", results[0].Metadata["url"])
}

func TestEngineSearchContext(t *testing.T) {
	engine := newTestEngine(t)
	engine.RegisterSource(fetch.NewStaticFetcher("docs", core.DocTypeText, []core.RawDocument{
		{ID: "doc-1", Title: "Guide", URL: "https://example.com/guide",
			Content: "A short guide that fits in one chunk.", Source: "docs"},
	}), "")
	ingestAndWait(t, engine, "docs")

	block, err := engine.SearchContext(context.Background(),
		"A short guide that fits in one chunk.", 5, 0, "docs")
	require.NoError(t, err)
	assert.Contains(t, block, "[docs | Guide | https://example.com/guide]")
	assert.Contains(t, block, "A short guide")
}

func TestEngineModelRouting(t *testing.T) {
	engine := newTestEngine(t, lodestone.WithScoreThreshold(0))
	engine.RegisterSource(fetch.NewStaticFetcher("docs", core.DocTypeText, []core.RawDocument{
		{ID: "d", Content: "default model content", Source: "docs"},
	}), "")
	engine.RegisterSource(fetch.NewStaticFetcher("wiki", core.DocTypeText, []core.RawDocument{
		{ID: "w", Content: "minilm model content", Source: "wiki"},
	}), "all-minilm")

	id, err := engine.Ingest([]string{"docs"}, nil, nil, "")
	require.NoError(t, err)
	waitForJob(t, engine, id)

	id, err = engine.Ingest([]string{"wiki"}, nil, nil, "all-minilm")
	require.NoError(t, err)
	waitForJob(t, engine, id)

	ctx := context.Background()
	defaultCount, err := engine.VectorRepository().Count(ctx, storage.CollectionForModel("nomic-embed-text"))
	require.NoError(t, err)
	minilmCount, err := engine.VectorRepository().Count(ctx, storage.CollectionForModel("all-minilm"))
	require.NoError(t, err)
	assert.Equal(t, 1, defaultCount)
	assert.Equal(t, 1, minilmCount)

	// A cross-source query merges both collections.
	results, err := engine.Search(ctx, "model content", 10)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, res := range results {
		seen[res.Source] = true
	}
	assert.True(t, seen["docs"] && seen["wiki"])
}

func TestEngineDeleteSource(t *testing.T) {
	engine := newTestEngine(t)
	engine.RegisterSource(fetch.NewStaticFetcher("docs", core.DocTypeText, []core.RawDocument{
		{ID: "d1", Content: "first document content.", Source: "docs"},
		{ID: "d2", Content: "second document content.", Source: "docs"},
	}), "")
	ingestAndWait(t, engine, "docs")

	ctx := context.Background()
	removed, err := engine.DeleteSource(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := engine.VectorRepository().Count(ctx, storage.CollectionForModel("nomic-embed-text"))
	require.NoError(t, err)
	assert.Zero(t, count)

	persisted, err := engine.ChunkRepository().LoadChunks(ctx, "docs")
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestEngineDeleteUnroutedSource(t *testing.T) {
	engine := newTestEngine(t)
	_, err := engine.DeleteSource(context.Background(), "ghost")
	assert.ErrorIs(t, err, retrieval.ErrNoRoute)
}

func TestEngineHealth(t *testing.T) {
	engine := newTestEngine(t)
	health, err := engine.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.OK())
	assert.True(t, health.PrimaryReachable)
	assert.True(t, health.ModelAvailable)
}

func TestEngineCancelJob(t *testing.T) {
	engine := newTestEngine(t)
	assert.False(t, engine.CancelJob("missing"), "unknown job is not cancellable")
}
