package badger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/storage"
	badgerdb "github.com/dgraph-io/badger/v4"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB. Chunks
// are kept around after embedding so a collection can be rebuilt for a
// different model without re-fetching the documents.
type ChunkRepository struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{
		backend: backend,
		logger:  slog.Default().With("component", "chunk-repository"),
	}
}

// Close implements storage.ChunkRepository. The underlying backend is
// shared and closed by its owner.
func (r *ChunkRepository) Close() error {
	return nil
}

// PersistChunks stores the chunks of one source. Content-derived chunk ids
// make the write idempotent for unchanged documents.
func (r *ChunkRepository) PersistChunks(ctx context.Context, source string, chunks []core.Chunk) error {
	if err := validateSource(source); err != nil {
		return err
	}

	for i := range chunks {
		if err := core.ValidateChunk(&chunks[i]); err != nil {
			return err
		}
	}

	for start := 0; start < len(chunks); start += maxTxnRecords {
		end := min(start+maxTxnRecords, len(chunks))
		err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
			for i := start; i < end; i++ {
				key := makeChunkKey(source, chunks[i].Id)
				if err := tx.Set(key, storage.MarshalChunk(&chunks[i])); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return err
		}
	}

	r.logger.Debug("persisted chunks", "source", source, "count", len(chunks))
	return nil
}

// LoadChunks returns all persisted chunks of a source. A record that fails
// to deserialize is logged and skipped rather than failing the whole load.
func (r *ChunkRepository) LoadChunks(ctx context.Context, source string) ([]core.Chunk, error) {
	if err := validateSource(source); err != nil {
		return nil, err
	}

	var chunks []core.Chunk
	err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = makeChunkScanPrefix(source)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var unmarshalErr error
				chunk, unmarshalErr = storage.UnmarshalChunk(val)
				return unmarshalErr
			})
			if err != nil {
				r.logger.Warn("skipping corrupt chunk record",
					"source", source, "key", string(iter.Item().Key()), "err", err)
				continue
			}
			chunks = append(chunks, *chunk)
		}
		return nil
	}, false)

	return chunks, err
}

// DeleteChunks removes all persisted chunks of a source and returns how
// many were removed.
func (r *ChunkRepository) DeleteChunks(ctx context.Context, source string) (int, error) {
	if err := validateSource(source); err != nil {
		return 0, err
	}

	var keys [][]byte
	err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = makeChunkScanPrefix(source)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			keys = append(keys, iter.Item().KeyCopy(nil))
		}
		return nil
	}, false)
	if err != nil {
		return 0, err
	}

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
			return 0, err
		}
	}

	return len(keys), nil
}

// validateSource rejects source names the key schema cannot represent.
func validateSource(source string) error {
	if source == "" || strings.Contains(source, ":") {
		return fmt.Errorf("%w: invalid source %q", core.ErrEmptySource, source)
	}
	return nil
}
