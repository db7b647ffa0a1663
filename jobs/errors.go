package jobs

import "errors"

var (
	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobCancelled marks a job failed by explicit cancellation.
	ErrJobCancelled = errors.New("job cancelled")

	// ErrManagerClosed indicates an operation on a closed manager.
	ErrManagerClosed = errors.New("job manager is closed")

	// ErrNoSources indicates a job created without any sources.
	ErrNoSources = errors.New("job needs at least one source")
)
