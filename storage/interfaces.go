package storage

import (
	"context"
	"time"

	"github.com/calyptra/lodestone/core"
)

// Float16Threshold is the widest dimension stored at full precision.
// Collections above it switch, once, to the reduced-precision float16
// representation.
const Float16Threshold = 1024

// Representation is the numeric encoding of a collection's vectors.
type Representation string

const (
	// RepFloat32 stores each component as a full-precision 4-byte float.
	RepFloat32 Representation = "float32"
	// RepFloat16 stores each component as a 2-byte half-precision float,
	// trading a small amount of precision for wide embeddings.
	RepFloat16 Representation = "float16"
)

// RepresentationFor returns the representation a collection of the given
// dimension is provisioned with.
func RepresentationFor(dimension int) Representation {
	if dimension > Float16Threshold {
		return RepFloat16
	}
	return RepFloat32
}

// CollectionManifest records the fixed schema of one collection. It is
// written on first provisioning and never modified afterwards; a schema
// change is a destructive recreate with a fresh manifest.
type CollectionManifest struct {
	Name           string
	Model          string
	Dimension      int
	Representation Representation
	CreatedAt      time.Time
}

// VectorRepository provides durable storage and cosine-similarity retrieval
// of vector records, grouped into collections. Implementations must be
// thread-safe and support concurrent access.
type VectorRepository interface {
	// EnsureCollection provisions the collection for the given model and
	// dimension if it does not exist. If it exists with a different
	// dimension or representation, returns ErrSchemaConflict unless
	// allowMigration is true, in which case the collection is
	// destructively recreated with the new schema.
	EnsureCollection(ctx context.Context, collection, model string, dimension int, allowMigration bool) error

	// Upsert writes a batch of records sharing one embedding dimension.
	// First write to an unprovisioned collection provisions it from the
	// batch dimension. An id conflict overwrites embedding, text and
	// metadata and bumps UpdatedAt. Vectors are normalized on write.
	// A dimension mismatch against the manifest follows EnsureCollection's
	// allowMigration semantics.
	Upsert(ctx context.Context, collection string, records []*core.VectorRecord, allowMigration bool) error

	// Search returns up to k results ordered by descending cosine
	// similarity. When sourceFilter is non-empty only records from that
	// source are considered; results below scoreThreshold are excluded.
	// Searching an unprovisioned collection returns ErrCollectionNotFound.
	Search(ctx context.Context, collection string, query []float32, k int, sourceFilter string, scoreThreshold float32) ([]*core.SearchResult, error)

	// DeleteBySource removes every record of the given source from the
	// collection and returns how many were removed. Other sources sharing
	// the collection are untouched.
	DeleteBySource(ctx context.Context, collection, source string) (int, error)

	// CollectionExists reports whether the collection is provisioned.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Count returns the number of records in the collection.
	Count(ctx context.Context, collection string) (int, error)

	// Manifest returns the collection's manifest, or ErrCollectionNotFound.
	Manifest(ctx context.Context, collection string) (*CollectionManifest, error)

	// Close closes the repository and releases resources.
	Close() error
}

// ChunkRepository persists raw chunks keyed by source, so a collection can
// be re-embedded with a different model without re-fetching documents.
type ChunkRepository interface {
	// PersistChunks stores the chunks of one source, replacing nothing;
	// chunk ids are content-derived so re-ingesting unchanged documents
	// overwrites in place.
	PersistChunks(ctx context.Context, source string, chunks []core.Chunk) error

	// LoadChunks returns all persisted chunks of a source. Records that
	// fail to deserialize are skipped with a warning, not returned as
	// errors.
	LoadChunks(ctx context.Context, source string) ([]core.Chunk, error)

	// DeleteChunks removes all persisted chunks of a source and returns
	// how many were removed.
	DeleteChunks(ctx context.Context, source string) (int, error)

	// Close closes the repository and releases resources.
	Close() error
}
