package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/storage"
)

// DefaultScoreThreshold excludes barely-related candidates from merges.
const DefaultScoreThreshold = 0.3

// Embedder is what the retriever needs per collection: a query embedding
// in that collection's own model space. *ai.Adapter satisfies it.
type Embedder interface {
	Model() string
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Composer builds the embedder for one model. Query vectors are never
// mixed across models; each collection is queried in its own space.
type Composer func(model string) (Embedder, error)

// Retriever fans one query out across collections and merges the results.
type Retriever struct {
	router    *Router
	vectors   storage.VectorRepository
	compose   Composer
	threshold float32
	logger    *slog.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithScoreThreshold sets the minimum similarity for merged results.
func WithScoreThreshold(threshold float32) RetrieverOption {
	return func(r *Retriever) {
		r.threshold = threshold
	}
}

// NewRetriever creates a retriever over the given router, vector store and
// embedder composer.
func NewRetriever(router *Router, vectors storage.VectorRepository, compose Composer, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		router:    router,
		vectors:   vectors,
		compose:   compose,
		threshold: DefaultScoreThreshold,
		logger:    slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// collectionAnswer is one collection's contribution to the merge.
type collectionAnswer struct {
	target  Target
	results []*core.SearchResult
	err     error
}

// Search answers one query. Each resolved collection is queried
// concurrently with a query vector in its own model space; candidates are
// merged by descending score and truncated to k. A single collection's
// failure is logged and excluded; the call fails only if every collection
// fails.
func (r *Retriever) Search(ctx context.Context, query string, k int, sources ...string) ([]*core.SearchResult, error) {
	targets, err := r.router.Resolve(sources)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, ErrNoCollections
	}

	answers := make([]collectionAnswer, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target Target) {
			defer wg.Done()
			results, err := r.searchCollection(ctx, target, query, k)
			answers[i] = collectionAnswer{target: target, results: results, err: err}
		}(i, target)
	}
	wg.Wait()

	var merged []*core.SearchResult
	failures := 0
	var lastErr error
	for _, answer := range answers {
		if answer.err != nil {
			failures++
			lastErr = answer.err
			r.logger.Warn("collection query failed, excluding from merge",
				"collection", answer.target.Collection, "err", answer.err)
			continue
		}
		merged = append(merged, answer.results...)
	}

	if failures == len(answers) {
		return nil, fmt.Errorf("%w: %w", ErrAllCollectionsFailed, lastErr)
	}

	slices.SortFunc(merged, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// searchCollection embeds the query for one collection and queries it.
func (r *Retriever) searchCollection(ctx context.Context, target Target, query string, k int) ([]*core.SearchResult, error) {
	embedder, err := r.compose(target.Model)
	if err != nil {
		return nil, fmt.Errorf("compose embedder: %w", err)
	}

	vector, err := embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// One filtered query per requested source. A single unfiltered top-k
	// would let unrequested sources sharing the collection crowd out
	// matches; per-source queries let every source contribute up to k.
	if len(target.Sources) == 0 {
		return r.vectors.Search(ctx, target.Collection, vector, k, "", r.threshold)
	}

	var results []*core.SearchResult
	for _, source := range target.Sources {
		matched, err := r.vectors.Search(ctx, target.Collection, vector, k, source, r.threshold)
		if err != nil {
			return nil, err
		}
		results = append(results, matched...)
	}
	return results, nil
}
