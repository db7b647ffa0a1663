package ai

import (
	"context"
	"log/slog"
)

// Health reports the usability of the embedding path.
type Health struct {
	// PrimaryReachable is true when the primary backend answered a ping.
	PrimaryReachable bool

	// ModelAvailable is true when the configured model is present on the
	// primary backend. Only meaningful when PrimaryReachable is true.
	ModelAvailable bool

	// FallbackUsable is true when a fallback backend is configured and
	// answered a ping.
	FallbackUsable bool

	// Detail carries the first error encountered, for diagnostics.
	Detail string
}

// OK reports whether at least one embedding path is usable.
func (h Health) OK() bool {
	return (h.PrimaryReachable && h.ModelAvailable) || h.FallbackUsable
}

// CheckHealth probes the adapter's backends. It never returns an error:
// unreachable backends are reported in the result.
func (a *Adapter) CheckHealth(ctx context.Context) Health {
	var h Health

	if err := a.primary.Ping(ctx); err != nil {
		h.Detail = err.Error()
		slog.Default().Warn("primary embedding backend unreachable",
			"model", a.primary.Model(), "err", err)
	} else {
		h.PrimaryReachable = true
		ok, err := a.primary.HasModel(ctx)
		if err != nil && h.Detail == "" {
			h.Detail = err.Error()
		}
		h.ModelAvailable = ok
	}

	if a.fallback != nil {
		if err := a.fallback.Ping(ctx); err != nil {
			if h.Detail == "" {
				h.Detail = err.Error()
			}
		} else {
			h.FallbackUsable = true
		}
	}

	return h
}
