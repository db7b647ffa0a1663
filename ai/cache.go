package ai

import (
	"context"
	"sync"

	"github.com/calyptra/lodestone/core"
)

// CachingEmbedder memoizes embeddings by a content hash of the input text.
// The cache is bounded; when full, the oldest entry is evicted. Batch calls
// resolve cache hits first, embed only the misses, and reassemble results
// in original input order.
type CachingEmbedder struct {
	inner      Embedder
	maxEntries int

	mu      sync.Mutex
	entries map[core.ID][]float32
	order   []core.ID // insertion order, oldest first
}

var _ Embedder = (*CachingEmbedder)(nil)

// NewCachingEmbedder wraps an embedder with a bounded memo cache.
// A non-positive maxEntries returns the inner embedder unchanged.
func NewCachingEmbedder(inner Embedder, maxEntries int) Embedder {
	if maxEntries <= 0 {
		return inner
	}
	return &CachingEmbedder{
		inner:      inner,
		maxEntries: maxEntries,
		entries:    make(map[core.ID][]float32),
	}
}

// EmbedText returns the cached vector for the text, or embeds and caches it.
func (c *CachingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := core.IDFromContent(text)
	if vec, ok := c.get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	c.put(key, vec)
	return vec, nil
}

// EmbedTexts embeds only the cache misses and reassembles all results in
// input order.
func (c *CachingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	for i, text := range texts {
		if vec, ok := c.get(core.IDFromContent(text)); ok {
			out[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, vec := range vecs {
		i := missIdx[j]
		out[i] = vec
		c.put(core.IDFromContent(texts[i]), vec)
	}
	return out, nil
}

// Len returns the number of cached entries.
func (c *CachingEmbedder) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachingEmbedder) get(key core.ID) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	vec, ok := c.entries[key]
	return vec, ok
}

func (c *CachingEmbedder) put(key core.ID, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		return
	}

	// Evict the oldest entry when full.
	if len(c.entries) >= c.maxEntries {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = vec
	c.order = append(c.order, key)
}
