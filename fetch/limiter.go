package fetch

import (
	"context"

	"golang.org/x/time/rate"
)

// DefaultRequestsPerSecond is a conservative default pace for fetchers
// talking to third-party services.
const DefaultRequestsPerSecond = 2.0

// Limiter is a token-bucket pace shared by a fetcher's requests.
type Limiter struct {
	bucket *rate.Limiter
}

// NewLimiter creates a limiter allowing requestsPerSecond sustained
// requests with a burst of one. A non-positive rate falls back to the
// default.
func NewLimiter(requestsPerSecond float64) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// Wait blocks until the next request is allowed or the context ends.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.bucket.Wait(ctx)
}
