package retrieval

import "errors"

var (
	// ErrNoRoute indicates a requested source with no model mapping.
	ErrNoRoute = errors.New("no route for source")

	// ErrNoCollections indicates a query that resolved to no collections.
	ErrNoCollections = errors.New("no collections to query")

	// ErrAllCollectionsFailed indicates that every resolved collection
	// failed to answer the query.
	ErrAllCollectionsFailed = errors.New("all collections failed")
)
