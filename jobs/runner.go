package jobs

import (
	"context"
	"fmt"
	"strconv"

	"github.com/calyptra/lodestone/core"
	"github.com/calyptra/lodestone/storage"
)

// docChunks is one fetched document reduced to its ordered chunks.
type docChunks struct {
	source string
	chunks []core.Chunk
}

// run executes one job through its phases. Any error or panic inside the
// job is caught here and recorded on the job; the manager and sibling jobs
// are never affected.
func (m *Manager) run(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("job panicked", "job", id, "panic", r)
			m.failJob(id, fmt.Sprintf("panic: %v", r))
		}
	}()

	input, err := m.Get(id)
	if err != nil {
		return
	}

	running := core.JobRunning
	fetching := core.PhaseFetching
	m.applyUpdate(id, jobUpdate{status: &running, phase: &fetching})

	embedder, err := m.compose(input.EmbeddingModel)
	if err != nil {
		m.failJob(id, fmt.Sprintf("compose embedder for %q: %v", input.EmbeddingModel, err))
		return
	}
	collection := storage.CollectionForModel(embedder.Model())

	docs := m.fetchPhase(ctx, id, input)
	if ctx.Err() != nil {
		m.abandon(id)
		return
	}

	if len(docs) == 0 {
		// Zero chunks across all sources is a successful, empty completion.
		completed := core.JobCompleted
		m.applyUpdate(id, jobUpdate{status: &completed})
		m.logger.Info("job completed empty", "job", id)
		return
	}

	records, ok := m.embedPhase(ctx, id, embedder, docs)
	if !ok {
		return
	}

	if !m.upsertPhase(ctx, id, embedder, collection, records) {
		return
	}

	completed := core.JobCompleted
	m.applyUpdate(id, jobUpdate{status: &completed})
	m.logger.Info("job completed",
		"job", id, "collection", collection, "records", len(records))
}

// fetchPhase retrieves and chunks all requested sources. Per-source
// failures become warnings; the phase never fails the job.
func (m *Manager) fetchPhase(ctx context.Context, id string, input *core.Job) []docChunks {
	var docs []docChunks

	for _, source := range input.Sources {
		if ctx.Err() != nil {
			return docs
		}
		m.applyUpdate(id, jobUpdate{currentSource: &source})

		fetcher, err := m.registry.Get(source)
		if err != nil {
			m.warnSource(id, source, err)
			continue
		}

		fetched, err := fetcher.Fetch(ctx, input.Keywords, input.ExtraURLs)
		if err != nil {
			if ctx.Err() != nil {
				return docs
			}
			m.warnSource(id, source, err)
			continue
		}

		count := len(fetched)
		m.applyUpdate(id, jobUpdate{addTotal: &count})

		var sourceChunks []core.Chunk
		for i := range fetched {
			chunks, err := m.splitter.Split(&fetched[i], fetcher.DocType())
			if err != nil {
				m.warnSource(id, source, fmt.Errorf("document %q: %w", fetched[i].ID, err))
				continue
			}
			if len(chunks) == 0 {
				continue
			}
			docs = append(docs, docChunks{source: source, chunks: chunks})
			sourceChunks = append(sourceChunks, chunks...)
		}

		// Persisted chunks let a later re-embed skip the fetch. Failure
		// here does not block the ingestion itself.
		if len(sourceChunks) > 0 {
			if err := m.chunks.PersistChunks(ctx, source, sourceChunks); err != nil {
				m.warnSource(id, source, fmt.Errorf("persist chunks: %w", err))
			}
		}
	}
	return docs
}

// embedPhase embeds every document's chunks in chunk order. An embedding
// failure is a shared-phase failure and fails the job.
func (m *Manager) embedPhase(ctx context.Context, id string, embedder Embedder, docs []docChunks) ([]*core.VectorRecord, bool) {
	embedding := core.PhaseEmbedding
	m.applyUpdate(id, jobUpdate{phase: &embedding})

	var records []*core.VectorRecord
	processed := 0

	for _, doc := range docs {
		if ctx.Err() != nil {
			m.abandon(id)
			return nil, false
		}
		m.applyUpdate(id, jobUpdate{currentSource: &doc.source})

		texts := make([]string, len(doc.chunks))
		for i, c := range doc.chunks {
			texts[i] = c.Text
		}

		vecs, err := embedder.EmbedTexts(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				m.abandon(id)
				return nil, false
			}
			m.failJob(id, fmt.Sprintf("embedding failed: %v", err))
			return nil, false
		}

		for i, c := range doc.chunks {
			records = append(records, &core.VectorRecord{
				Id:        c.Id,
				Embedding: vecs[i],
				Text:      c.Text,
				Metadata:  recordMetadata(&c.Metadata),
				Source:    c.Metadata.Source,
			})
		}

		processed++
		m.applyUpdate(id, jobUpdate{processed: &processed})
	}
	return records, true
}

// upsertPhase provisions the collection from the observed dimension and
// writes all records. A store failure fails the job.
func (m *Manager) upsertPhase(ctx context.Context, id string, embedder Embedder, collection string, records []*core.VectorRecord) bool {
	upserting := core.PhaseUpserting
	m.applyUpdate(id, jobUpdate{phase: &upserting})

	if ctx.Err() != nil {
		m.abandon(id)
		return false
	}

	dimension := len(records[0].Embedding)
	if err := m.vectors.EnsureCollection(ctx, collection, embedder.Model(), dimension, false); err != nil {
		m.failJob(id, fmt.Sprintf("collection %q: %v", collection, err))
		return false
	}

	if err := m.vectors.Upsert(ctx, collection, records, false); err != nil {
		if ctx.Err() != nil {
			m.abandon(id)
			return false
		}
		m.failJob(id, fmt.Sprintf("upsert into %q: %v", collection, err))
		return false
	}
	return true
}

// warnSource records a recovered per-source failure on the job.
func (m *Manager) warnSource(id, source string, err error) {
	m.logger.Warn("skipping source", "job", id, "source", source, "err", err)
	warning := fmt.Sprintf("source %q: %v", source, err)
	m.applyUpdate(id, jobUpdate{warning: &warning})
}

// failJob marks a job FAILED with the given message.
func (m *Manager) failJob(id, message string) {
	failed := core.JobFailed
	m.applyUpdate(id, jobUpdate{status: &failed, err: &message})
	m.logger.Error("job failed", "job", id, "err", message)
}

// abandon finalizes a cancelled job. Cancel already marked it FAILED; this
// covers cancellation through manager shutdown, where the context dies
// without the job being marked.
func (m *Manager) abandon(id string) {
	m.failJob(id, ErrJobCancelled.Error())
}

// recordMetadata flattens chunk provenance into the record metadata map.
func recordMetadata(meta *core.ChunkMeta) map[string]string {
	return map[string]string{
		"url":         meta.URL,
		"title":       meta.Title,
		"doc_id":      meta.DocID,
		"chunk_index": strconv.Itoa(meta.ChunkIndex),
	}
}
