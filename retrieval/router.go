package retrieval

import (
	"fmt"
	"sort"
	"sync"

	"github.com/calyptra/lodestone/storage"
)

// Target is one collection to query, with the sources the caller asked for
// that live in it. An empty Sources slice means the whole collection.
type Target struct {
	Model      string
	Collection string
	Sources    []string
}

// Router maintains the source -> embedding model -> collection mapping.
// Thread-safe.
type Router struct {
	mu     sync.RWMutex
	routes map[string]string // source -> model
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]string)}
}

// SetRoute binds a source tag to an embedding model. The collection
// follows from the model.
func (r *Router) SetRoute(source, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[source] = model
}

// ModelFor returns the embedding model serving a source.
func (r *Router) ModelFor(source string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model, ok := r.routes[source]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoRoute, source)
	}
	return model, nil
}

// Sources returns all routed source tags, sorted.
func (r *Router) Sources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sources := make([]string, 0, len(r.routes))
	for source := range r.routes {
		sources = append(sources, source)
	}
	sort.Strings(sources)
	return sources
}

// Resolve returns the minimal set of collections covering the requested
// sources. With no sources, every known collection is targeted without a
// source restriction.
func (r *Router) Resolve(sources []string) ([]Target, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byModel := make(map[string][]string)
	if len(sources) == 0 {
		for _, model := range r.routes {
			if _, ok := byModel[model]; !ok {
				byModel[model] = nil
			}
		}
	} else {
		for _, source := range sources {
			model, ok := r.routes[source]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrNoRoute, source)
			}
			byModel[model] = append(byModel[model], source)
		}
	}

	targets := make([]Target, 0, len(byModel))
	for model, modelSources := range byModel {
		sort.Strings(modelSources)
		targets = append(targets, Target{
			Model:      model,
			Collection: storage.CollectionForModel(model),
			Sources:    modelSources,
		})
	}
	sort.Slice(targets, func(i, j int) bool {
		return targets[i].Collection < targets[j].Collection
	})
	return targets, nil
}
