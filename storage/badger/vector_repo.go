package badger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/storage"
	badgerdb "github.com/dgraph-io/badger/v4"
)

// maxTxnRecords caps how many records go into one write transaction, so
// large upserts never trip badger's transaction size limit.
const maxTxnRecords = 128

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Similarity search is a linear scan over the collection's records; vectors
// are normalized on write so cosine similarity reduces to a dot product.
type VectorRepository struct {
	backend *Backend
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per-collection, guards schema mutations
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) *VectorRepository {
	return &VectorRepository{
		backend: backend,
		logger:  slog.Default().With("component", "vector-repository"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Close implements storage.VectorRepository. The underlying backend is
// shared and closed by its owner.
func (r *VectorRepository) Close() error {
	return nil
}

// Upsert writes a batch of records into a collection, provisioning it from
// the batch dimension on first write.
func (r *VectorRepository) Upsert(ctx context.Context, collection string, records []*core.VectorRecord, allowMigration bool) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateCollection(collection); err != nil {
		return err
	}

	dimension := len(records[0].Embedding)
	for _, record := range records {
		if err := core.ValidateRecord(record); err != nil {
			return err
		}
		if len(record.Embedding) != dimension {
			return fmt.Errorf("%w: %d and %d", storage.ErrMixedDimensions,
				dimension, len(record.Embedding))
		}
	}

	lock := r.lockCollection(collection)
	lock.Lock()
	defer lock.Unlock()

	if err := r.ensureLocked(collection, "", dimension, allowMigration); err != nil {
		return err
	}

	manifest, err := r.getManifest(collection)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for start := 0; start < len(records); start += maxTxnRecords {
		end := min(start+maxTxnRecords, len(records))
		err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
			for _, record := range records[start:end] {
				record.Embedding = normalize(record.Embedding)
				record.UpdatedAt = now

				key := makeVectorKey(collection, record.Id)
				value := storage.MarshalVectorRecord(record, manifest.Representation)
				if err := tx.Set(key, value); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
	}

	r.logger.Debug("upserted records",
		"collection", collection, "count", len(records), "dimension", dimension)
	return nil
}

// Search returns up to k records ordered by descending cosine similarity,
// filtered by source and score threshold.
func (r *VectorRepository) Search(ctx context.Context, collection string, query []float32, k int, sourceFilter string, scoreThreshold float32) ([]*core.SearchResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	manifest, err := r.getManifest(collection)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, collection)
	}

	query = normalize(slices.Clone(query))

	var results []*core.SearchResult
	err = r.backend.WithTx(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = makeVectorScanPrefix(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				record, unmarshalErr = storage.UnmarshalVectorRecord(val, manifest.Representation)
				return unmarshalErr
			})
			if err != nil {
				return err
			}

			if sourceFilter != "" && record.Source != sourceFilter {
				continue
			}

			score := dotProduct(query, record.Embedding)
			if score < scoreThreshold {
				continue
			}

			results = append(results, &core.SearchResult{
				Id:       record.Id,
				Text:     record.Text,
				Metadata: record.Metadata,
				Source:   record.Source,
				Score:    score,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteBySource removes all records of one source from a collection and
// returns how many were removed.
func (r *VectorRepository) DeleteBySource(ctx context.Context, collection, source string) (int, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}

	manifest, err := r.getManifest(collection)
	if err != nil {
		return 0, err
	}
	if manifest == nil {
		return 0, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, collection)
	}

	var keys [][]byte
	err = r.backend.WithTx(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = makeVectorScanPrefix(collection)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var record *core.VectorRecord
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				record, unmarshalErr = storage.UnmarshalVectorRecord(val, manifest.Representation)
				return unmarshalErr
			})
			if err != nil {
				return err
			}
			if record.Source == source {
				keys = append(keys, iter.Item().KeyCopy(nil))
			}
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

	if err := r.deleteKeys(keys); err != nil {
		return 0, err
	}

	r.logger.Info("deleted records by source",
		"collection", collection, "source", source, "count", len(keys))
	return len(keys), nil
}

// CollectionExists reports whether the collection is provisioned.
func (r *VectorRepository) CollectionExists(ctx context.Context, collection string) (bool, error) {
	manifest, err := r.getManifest(collection)
	if err != nil {
		return false, err
	}
	return manifest != nil, nil
}

// Count returns the number of records in the collection.
func (r *VectorRepository) Count(ctx context.Context, collection string) (int, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}

	count := 0
	err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = makeVectorScanPrefix(collection)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// Manifest returns the collection's manifest.
func (r *VectorRepository) Manifest(ctx context.Context, collection string) (*storage.CollectionManifest, error) {
	manifest, err := r.getManifest(collection)
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, collection)
	}
	return manifest, nil
}

// collectKeys gathers all keys under a prefix.
func (r *VectorRepository) collectKeys(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	return keys, err
}

// deleteKeys removes keys in bounded write transactions.
func (r *VectorRepository) deleteKeys(keys [][]byte) error {
	for start := 0; start < len(keys); start += maxTxnRecords {
		end := min(start+maxTxnRecords, len(keys))
		err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
			for _, key := range keys[start:end] {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
	}
	return nil
}

// normalize scales a vector to unit length. Zero vectors are returned
// unchanged.
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, f := range v {
		sumSquares += float64(f) * float64(f)
	}
	if sumSquares == 0 {
		return v
	}
	norm := float32(1 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= norm
	}
	return v
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
