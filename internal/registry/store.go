package registry

import (
	"context"
	"log/slog"
	"time"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/stac"
)

// Store persists registry entries.
type Store interface {
	// Register inserts def if its fingerprint is new, otherwise touches the
	// existing row. The definition and creation time of an existing row are
	// never altered.
	Register(ctx context.Context, def mosaic.SearchDefinition, md mosaic.Metadata) (*mosaic.Entry, error)

	// Get returns the entry and refreshes its last-used time.
	Get(ctx context.Context, id string) (*mosaic.Entry, error)

	// Peek returns the entry without touching it.
	Peek(ctx context.Context, id string) (*mosaic.Entry, error)

	// List returns one page of entries plus the total number matching the filters.
	// Listing never touches the entries it returns.
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// ListParams selects and orders a page of entries.
type ListParams struct {
	Filters []stac.MetadataFilter
	Sortby  *stac.SortbyItem
	Limit   int
	Offset  int
}

// ListResult is one page of entries.
type ListResult struct {
	Entries []*mosaic.Entry
	Matched int
}

// MetadataPolicy decides what happens to metadata when an existing id is
// registered again.
type MetadataPolicy int

const (
	// LastWriteWins replaces the stored metadata with the latest registration.
	LastWriteWins MetadataPolicy = iota
	// KeepFirst keeps the metadata of the first registration.
	KeepFirst
)

func (p MetadataPolicy) String() string {
	if p == KeepFirst {
		return "keep-first"
	}
	return "last-write-wins"
}

// DefaultTimeout bounds each backend round-trip when no timeout is configured.
const DefaultTimeout = 10 * time.Second

type options struct {
	policy  MetadataPolicy
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*options)

// WithMetadataPolicy sets the re-registration metadata policy.
func WithMetadataPolicy(p MetadataPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithTimeout bounds every backend call made by the store.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock overrides the time source of the in-memory store.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		policy:  LastWriteWins,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// sortKey returns the requested sort field and direction. A nil sortby means
// registration order.
func sortKey(s *stac.SortbyItem) (string, bool) {
	if s == nil || s.Field == "" {
		return "", false
	}
	return s.Field, s.Direction == stac.SortDesc
}
