package badger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/calyptra/lodestone/storage"
	badgerdb "github.com/dgraph-io/badger/v4"
)

// Collection provisioning and schema enforcement. Every mutation of a
// collection's manifest happens under that collection's mutex, so two
// concurrent first writes cannot race the schema choice.

// lockCollection returns the mutex guarding one collection, creating it on
// first use.
func (r *VectorRepository) lockCollection(collection string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[collection]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[collection] = lock
	}
	return lock
}

// validateCollection rejects names the key schema cannot represent.
func validateCollection(collection string) error {
	if collection == "" || strings.Contains(collection, ":") {
		return fmt.Errorf("%w: %q", storage.ErrInvalidCollection, collection)
	}
	return nil
}

// readManifest reads a collection manifest within a transaction.
// Returns nil without error if the collection is not provisioned.
func readManifest(tx *badgerdb.Txn, collection string) (*storage.CollectionManifest, error) {
	item, err := tx.Get(makeManifestKey(collection))
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var manifest *storage.CollectionManifest
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		manifest, unmarshalErr = storage.UnmarshalManifest(val)
		return unmarshalErr
	})
	return manifest, err
}

// getManifest reads a collection manifest in its own read transaction.
func (r *VectorRepository) getManifest(collection string) (*storage.CollectionManifest, error) {
	var manifest *storage.CollectionManifest
	err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
		var readErr error
		manifest, readErr = readManifest(tx, collection)
		return readErr
	}, false)
	return manifest, err
}

// EnsureCollection provisions the collection if needed, enforcing the
// schema against an existing manifest. Must be called before concurrent
// writers start; the Job Manager runs it once per job up front.
func (r *VectorRepository) EnsureCollection(ctx context.Context, collection, model string, dimension int, allowMigration bool) error {
	if err := validateCollection(collection); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension %d", storage.ErrSchemaConflict, dimension)
	}

	lock := r.lockCollection(collection)
	lock.Lock()
	defer lock.Unlock()

	return r.ensureLocked(collection, model, dimension, allowMigration)
}

// ensureLocked is EnsureCollection's body; the caller holds the collection
// mutex.
func (r *VectorRepository) ensureLocked(collection, model string, dimension int, allowMigration bool) error {
	manifest, err := r.getManifest(collection)
	if err != nil {
		return err
	}

	if manifest == nil {
		return r.provision(collection, model, dimension)
	}

	rep := storage.RepresentationFor(dimension)
	if manifest.Dimension == dimension && manifest.Representation == rep {
		return nil
	}

	if !allowMigration {
		return fmt.Errorf("%w: collection %q has dimension %d (%s), write requires %d (%s)",
			storage.ErrSchemaConflict, collection,
			manifest.Dimension, manifest.Representation, dimension, rep)
	}

	return r.migrate(collection, model, dimension)
}

// provision writes the manifest for a new collection. The representation
// is fixed here, once, from the first observed dimension.
func (r *VectorRepository) provision(collection, model string, dimension int) error {
	manifest := &storage.CollectionManifest{
		Name:           collection,
		Model:          model,
		Dimension:      dimension,
		Representation: storage.RepresentationFor(dimension),
		CreatedAt:      time.Now().UTC(),
	}

	r.logger.Info("provisioning collection",
		"collection", collection, "model", model,
		"dimension", dimension, "representation", manifest.Representation)

	return r.backend.WithTx(func(tx *badgerdb.Txn) error {
		if err := tx.Set(makeManifestKey(collection), storage.MarshalManifest(manifest)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// migrate destructively recreates one collection with a new schema. All
// existing records of the collection are dropped; other collections are
// untouched.
func (r *VectorRepository) migrate(collection, model string, dimension int) error {
	old, err := r.getManifest(collection)
	if err != nil {
		return err
	}

	r.logger.Warn("destructive collection migration",
		"collection", collection,
		"old_dimension", old.Dimension, "new_dimension", dimension)

	keys, err := r.collectKeys(makeVectorScanPrefix(collection))
	if err != nil {
		return err
	}
	if err := r.deleteKeys(keys); err != nil {
		return err
	}

	if err := r.backend.WithTx(func(tx *badgerdb.Txn) error {
		if err := tx.Delete(makeManifestKey(collection)); err != nil {
			return err
		}
		return tx.Commit()
	}, true); err != nil {
		return err
	}

	return r.provision(collection, model, dimension)
}
