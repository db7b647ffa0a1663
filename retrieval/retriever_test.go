package retrieval_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/retrieval"
	"github.com/calyptra/lodestone/storage"
	"github.com/calyptra/lodestone/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct {
	model string
	vec   []float32
	err   error
}

func (s stubEmbedder) Model() string { return s.model }

func (s stubEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

// twoCollectionStore seeds two collections in different embedding spaces:
// model-a (dim 2) with sources alpha/gamma, model-b (dim 3) with beta.
func twoCollectionStore(t *testing.T) storage.VectorRepository {
	t.Helper()

	vectors, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()

	err = vectors.Upsert(ctx, storage.CollectionForModel("model-a"), []*core.VectorRecord{
		{Id: 1, Source: "alpha", Text: "exact match", Embedding: []float32{1, 0}},
		{Id: 2, Source: "alpha", Text: "close match", Embedding: []float32{0.8, 0.6}},
		{Id: 3, Source: "gamma", Text: "other source", Embedding: []float32{1, 0}},
	}, false)
	require.NoError(t, err)

	err = vectors.Upsert(ctx, storage.CollectionForModel("model-b"), []*core.VectorRecord{
		{Id: 4, Source: "beta", Text: "second space", Embedding: []float32{0.3, 0.954, 0}},
	}, false)
	require.NoError(t, err)

	return vectors
}

func testRouter() *retrieval.Router {
	router := retrieval.NewRouter()
	router.SetRoute("alpha", "model-a")
	router.SetRoute("gamma", "model-a")
	router.SetRoute("beta", "model-b")
	return router
}

func testComposer(failModel string) retrieval.Composer {
	return func(model string) (retrieval.Embedder, error) {
		if model == failModel {
			return nil, errors.New("backend offline")
		}
		switch model {
		case "model-a":
			return stubEmbedder{model: model, vec: []float32{1, 0}}, nil
		case "model-b":
			return stubEmbedder{model: model, vec: []float32{0, 1, 0}}, nil
		}
		return nil, fmt.Errorf("unexpected model %q", model)
	}
}

func TestSearchMergesAcrossCollections(t *testing.T) {
	vectors := twoCollectionStore(t)
	retriever := retrieval.NewRetriever(testRouter(), vectors, testComposer(""))

	results, err := retriever.Search(context.Background(), "query", 10, "alpha", "beta")
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Descending score across both embedding spaces.
	assert.Equal(t, core.ID(1), results[0].Id)
	assert.Equal(t, core.ID(4), results[1].Id)
	assert.Equal(t, core.ID(2), results[2].Id)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}

	// Nothing from the unrequested gamma source.
	for _, res := range results {
		assert.NotEqual(t, "gamma", res.Source)
	}
}

func TestSearchTruncatesToK(t *testing.T) {
	vectors := twoCollectionStore(t)
	retriever := retrieval.NewRetriever(testRouter(), vectors, testComposer(""))

	results, err := retriever.Search(context.Background(), "query", 2, "alpha", "beta")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, core.ID(1), results[0].Id)
	assert.Equal(t, core.ID(4), results[1].Id)
}

func TestSearchNoFilterQueriesAllCollections(t *testing.T) {
	vectors := twoCollectionStore(t)
	retriever := retrieval.NewRetriever(testRouter(), vectors, testComposer(""))

	results, err := retriever.Search(context.Background(), "query", 10)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, res := range results {
		seen[res.Source] = true
	}
	assert.True(t, seen["alpha"] && seen["beta"] && seen["gamma"])
}

func TestSearchSingleCollectionFailureIsExcluded(t *testing.T) {
	vectors := twoCollectionStore(t)
	retriever := retrieval.NewRetriever(testRouter(), vectors, testComposer("model-b"))

	results, err := retriever.Search(context.Background(), "query", 10, "alpha", "beta")
	require.NoError(t, err, "one failing collection must not fail the query")

	for _, res := range results {
		assert.Equal(t, "alpha", res.Source)
	}
}

func TestSearchAllCollectionsFailed(t *testing.T) {
	vectors := twoCollectionStore(t)
	retriever := retrieval.NewRetriever(testRouter(), vectors, testComposer("model-a"))

	_, err := retriever.Search(context.Background(), "query", 10, "alpha", "gamma")
	assert.ErrorIs(t, err, retrieval.ErrAllCollectionsFailed)
}

func TestSearchUnroutedSource(t *testing.T) {
	vectors := twoCollectionStore(t)
	retriever := retrieval.NewRetriever(testRouter(), vectors, testComposer(""))

	_, err := retriever.Search(context.Background(), "query", 10, "unknown")
	assert.ErrorIs(t, err, retrieval.ErrNoRoute)
}

func TestSearchUnrequestedSourceCannotCrowdOutMatches(t *testing.T) {
	vectors, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()

	// Two top-scoring records from a source nobody asked for share the
	// collection with one weaker match per requested source.
	err = vectors.Upsert(ctx, storage.CollectionForModel("model-a"), []*core.VectorRecord{
		{Id: 10, Source: "noise", Text: "unrequested", Embedding: []float32{1, 0}},
		{Id: 11, Source: "noise", Text: "unrequested", Embedding: []float32{1, 0}},
		{Id: 1, Source: "alpha", Text: "requested", Embedding: []float32{0.8, 0.6}},
		{Id: 2, Source: "gamma", Text: "requested", Embedding: []float32{0.6, 0.8}},
	}, false)
	require.NoError(t, err)

	retriever := retrieval.NewRetriever(testRouter(), vectors, testComposer(""))

	results, err := retriever.Search(ctx, "query", 2, "alpha", "gamma")
	require.NoError(t, err)
	require.Len(t, results, 2, "each requested source contributes its match")
	assert.Equal(t, core.ID(1), results[0].Id)
	assert.Equal(t, core.ID(2), results[1].Id)
	for _, res := range results {
		assert.NotEqual(t, "noise", res.Source)
	}
}

func TestSearchThresholdExcludes(t *testing.T) {
	vectors := twoCollectionStore(t)
	retriever := retrieval.NewRetriever(testRouter(), vectors, testComposer(""),
		retrieval.WithScoreThreshold(0.9))

	results, err := retriever.Search(context.Background(), "query", 10, "alpha")
	require.NoError(t, err)
	require.Len(t, results, 1, "only the exact match clears 0.9")
	assert.Equal(t, core.ID(1), results[0].Id)
}
