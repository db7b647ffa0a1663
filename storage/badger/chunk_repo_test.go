package badger

import (
	"context"
	"testing"

	"github.com/calyptra/lodestone/core"
	badgerdb "github.com/dgraph-io/badger/v4"
)

func makeChunk(source, docID string, index int, text string) core.Chunk {
	return core.Chunk{
		Id:   core.ChunkID(docID, index, text),
		Text: text,
		Metadata: core.ChunkMeta{
			Source:     source,
			DocID:      docID,
			ChunkIndex: index,
		},
	}
}

func TestPersistAndLoadChunks(t *testing.T) {
	_, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()

	chunks := []core.Chunk{
		makeChunk("docs", "doc-1", 0, "first chunk"),
		makeChunk("docs", "doc-1", 1, "second chunk"),
		makeChunk("docs", "doc-2", 0, "another document"),
	}
	if err := chunkRepo.PersistChunks(ctx, "docs", chunks); err != nil {
		t.Fatalf("PersistChunks failed: %v", err)
	}

	loaded, err := chunkRepo.LoadChunks(ctx, "docs")
	if err != nil {
		t.Fatalf("LoadChunks failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(loaded))
	}

	byID := make(map[core.ID]core.Chunk)
	for _, c := range loaded {
		byID[c.Id] = c
	}
	for _, want := range chunks {
		got, ok := byID[want.Id]
		if !ok {
			t.Fatalf("Chunk %d missing after load", want.Id)
		}
		if got.Text != want.Text || got.Metadata != want.Metadata {
			t.Fatalf("Chunk %d round-trip mismatch: got %+v", want.Id, got)
		}
	}
}

func TestPersistChunksIsIdempotent(t *testing.T) {
	_, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()

	chunks := []core.Chunk{makeChunk("docs", "doc-1", 0, "same content")}
	if err := chunkRepo.PersistChunks(ctx, "docs", chunks); err != nil {
		t.Fatalf("First persist failed: %v", err)
	}
	if err := chunkRepo.PersistChunks(ctx, "docs", chunks); err != nil {
		t.Fatalf("Second persist failed: %v", err)
	}

	loaded, err := chunkRepo.LoadChunks(ctx, "docs")
	if err != nil {
		t.Fatalf("LoadChunks failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Expected content-derived ids to overwrite, got %d chunks", len(loaded))
	}
}

func TestLoadChunksSkipsCorruptRecords(t *testing.T) {
	_, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()

	if err := chunkRepo.PersistChunks(ctx, "docs", []core.Chunk{
		makeChunk("docs", "doc-1", 0, "good chunk"),
	}); err != nil {
		t.Fatalf("PersistChunks failed: %v", err)
	}

	// Write garbage directly under the same source prefix.
	err = backend.WithTx(func(tx *badgerdb.Txn) error {
		if err := tx.Set(makeChunkKey("docs", core.ID(999)), []byte{0xff, 0xfe}); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		t.Fatalf("Failed to write corrupt record: %v", err)
	}

	loaded, err := chunkRepo.LoadChunks(ctx, "docs")
	if err != nil {
		t.Fatalf("LoadChunks failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Expected corrupt record skipped, got %d chunks", len(loaded))
	}
	if loaded[0].Text != "good chunk" {
		t.Fatalf("Expected the intact chunk, got %+v", loaded[0])
	}
}

func TestDeleteChunks(t *testing.T) {
	_, chunkRepo, backend, err := NewMemoryRepositories()
	if err != nil {
		t.Fatalf("Failed to create repositories: %v", err)
	}
	defer backend.Close()

	ctx := context.Background()

	if err := chunkRepo.PersistChunks(ctx, "alpha", []core.Chunk{
		makeChunk("alpha", "doc-1", 0, "one"),
		makeChunk("alpha", "doc-1", 1, "two"),
	}); err != nil {
		t.Fatalf("PersistChunks failed: %v", err)
	}
	if err := chunkRepo.PersistChunks(ctx, "beta", []core.Chunk{
		makeChunk("beta", "doc-2", 0, "three"),
	}); err != nil {
		t.Fatalf("PersistChunks failed: %v", err)
	}

	removed, err := chunkRepo.DeleteChunks(ctx, "alpha")
	if err != nil {
		t.Fatalf("DeleteChunks failed: %v", err)
	}
	if removed != 2 {
		t.Fatalf("Expected 2 removed, got %d", removed)
	}

	// Other sources are untouched.
	loaded, err := chunkRepo.LoadChunks(ctx, "beta")
	if err != nil {
		t.Fatalf("LoadChunks failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Expected beta chunks intact, got %d", len(loaded))
	}
}
