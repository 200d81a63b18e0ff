// Package backend provides the spatial backends (pgstac, in-memory) that
// evaluate resolved CQL2 queries against the item catalog.
package backend

import (
	"context"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
)

// AssetBackend evaluates a CQL2-JSON expression against the item catalog.
// Both the pgstac and the in-memory backends implement this interface.
type AssetBackend interface {
	// Assets returns at most limit items matching query, in the backend's
	// native order. A nil query matches every item.
	Assets(ctx context.Context, query map[string]any, limit int) ([]mosaic.AssetMatch, error)

	// Collections returns the ids of every collection the backend holds.
	Collections(ctx context.Context) ([]string, error)

	// Health reports connectivity and version information.
	Health(ctx context.Context) (*Health, error)

	// Name returns the backend name (e.g., "pgstac", "memory").
	Name() string
}

// Health describes the state of a backend.
type Health struct {
	Online   bool              `json:"database_online"`
	Versions map[string]string `json:"versions,omitempty"`
	ReadOnly bool              `json:"pgstac_readonly"`
}

// Operators returns the CQL2 operators b can evaluate, or nil when b takes
// the full set.
func Operators(b AssetBackend) []string {
	if limited, ok := b.(interface{ Operators() []string }); ok {
		return limited.Operators()
	}
	return nil
}
