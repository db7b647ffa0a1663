package fetch

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/calyptra/lodestone/core"
)

// Fetcher retrieves raw documents for one source. Implementations must
// self-rate-limit and must tolerate partial failure: a document that cannot
// be retrieved is skipped, not raised.
type Fetcher interface {
	// Source returns the source tag this fetcher serves.
	Source() string

	// DocType returns the document type the source produces, which selects
	// the chunking strategy.
	DocType() core.DocType

	// Fetch retrieves documents matching the keywords, plus any explicitly
	// requested extra URLs. Returns whatever was retrievable.
	Fetch(ctx context.Context, keywords, extraURLs []string) ([]core.RawDocument, error)
}

// Registry maps source tags to their fetchers. Thread-safe.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]Fetcher
}

// NewRegistry creates an empty fetcher registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: make(map[string]Fetcher)}
}

// Register adds a fetcher under its source tag, replacing any previous
// registration for the same tag.
func (r *Registry) Register(f Fetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[f.Source()] = f
}

// Get returns the fetcher for a source tag.
func (r *Registry) Get(source string) (Fetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fetchers[source]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
	return f, nil
}

// Sources returns the registered source tags, sorted.
func (r *Registry) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.fetchers))
	for source := range r.fetchers {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}
