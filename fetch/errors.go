package fetch

import "errors"

var (
	// ErrUnknownSource indicates a source tag with no registered fetcher.
	ErrUnknownSource = errors.New("unknown source")

	// ErrFetchFailed indicates that a fetch produced no documents because
	// of an underlying failure.
	ErrFetchFailed = errors.New("fetch failed")
)
