package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated from entity content using BLAKE2b hashing so that
// re-deriving an entity from unchanged input reproduces the same ID.
type ID uint64

// chunkIDPrefixLen is how much of the chunk text participates in the ID.
// Enough to distinguish reordered chunks, small enough that edits near the
// tail of a chunk do not churn identifiers.
const chunkIDPrefixLen = 100

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content always produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the identifier for a chunk from its document, position and
// a prefix of its text. Re-chunking an unchanged document yields the same
// IDs, which makes upserts idempotent.
func ChunkID(docID string, chunkIndex int, text string) ID {
	prefix := text
	if len(prefix) > chunkIDPrefixLen {
		prefix = prefix[:chunkIDPrefixLen]
	}
	return IDFromContent(docID + "\x1f" + strconv.Itoa(chunkIndex) + "\x1f" + prefix)
}

// String returns the decimal form of the ID, used as the opaque record key
// on wire formats that expect a string.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// RawDocument is a document fetched from an external source.
// It is immutable once handed to the chunker.
type RawDocument struct {
	ID        string
	URL       string
	Title     string
	Content   string
	Source    string
	Metadata  map[string]string
	FetchedAt time.Time
}

// DocType tags the kind of content a document carries. It selects the
// segmentation strategy applied while chunking.
type DocType int

const (
	// DocTypeText is plain prose, split on paragraph boundaries.
	DocTypeText DocType = iota + 1
	// DocTypeMarkdown is prose with fenced code blocks kept atomic.
	DocTypeMarkdown
	// DocTypeReference is heading-structured material split per heading.
	DocTypeReference
)

// ChunkMeta carries the provenance of a chunk back to its document.
type ChunkMeta struct {
	Source     string
	URL        string
	Title      string
	DocID      string
	ChunkIndex int
}

// Chunk is a bounded, embeddable slice of a document's text.
type Chunk struct {
	Id       ID
	Text     string
	Metadata ChunkMeta
}

// VectorRecord is one embedded chunk as persisted in a vector collection.
type VectorRecord struct {
	Id        ID
	Embedding []float32
	Text      string
	Metadata  map[string]string
	Source    string
	UpdatedAt time.Time
}

// SearchResult is a transient, query-time similarity match.
type SearchResult struct {
	Id       ID
	Text     string
	Metadata map[string]string
	Source   string
	Score    float32
}

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobPhase is the stage a running job is currently in.
type JobPhase string

const (
	PhaseFetching  JobPhase = "fetching"
	PhaseEmbedding JobPhase = "embedding"
	PhaseUpserting JobPhase = "upserting"
)

// JobProgress is the polled progress snapshot of one job.
type JobProgress struct {
	TotalDocs     int
	Processed     int
	CurrentSource string
	CurrentPhase  JobPhase
}

// Job describes one background ingestion unit of work. Jobs live only for
// the duration of the process; there is no cross-restart durability.
type Job struct {
	Id             string
	Status         JobStatus
	Sources        []string
	Keywords       []string
	ExtraURLs      []string
	EmbeddingModel string
	Progress       JobProgress
	Warnings       []string
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
