package ai

import "errors"

var (
	// ErrPrimaryBackend indicates the primary embedding backend failed.
	// The adapter recovers from it via the fallback; callers only observe
	// it wrapped inside ErrEmbeddingFailed when the fallback fails too.
	ErrPrimaryBackend = errors.New("primary embedding backend failed")

	// ErrEmbeddingFailed indicates both the primary and the fallback
	// backend failed for the same input.
	ErrEmbeddingFailed = errors.New("embedding failed on primary and fallback")

	// ErrEmptyEmbedding indicates a backend response carried no vector.
	// It is treated exactly like any other backend failure.
	ErrEmptyEmbedding = errors.New("backend returned empty embedding")

	// ErrBackendRequired is returned when an adapter is constructed
	// without a primary backend.
	ErrBackendRequired = errors.New("embedding backend required")
)
