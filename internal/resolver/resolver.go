// Package resolver turns a registered search id plus a query geometry into
// the ordered set of matching items and their asset keys.
package resolver

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkm/pgstac-mosaic/internal/backend"
	"github.com/rkm/pgstac-mosaic/internal/metrics"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

const tracerName = "github.com/rkm/pgstac-mosaic/internal/resolver"

// DefaultLimit caps the number of items returned when the caller gives none.
const DefaultLimit = 100

// Lookup fetches a registry entry and refreshes its last-used time.
type Lookup interface {
	Get(ctx context.Context, id string) (*mosaic.Entry, error)
}

// Resolver resolves asset queries against a backend.
type Resolver struct {
	store   Lookup
	backend backend.AssetBackend
	limit   int
	tracer  trace.Tracer
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLimit sets the default item limit.
func WithLimit(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

// WithTracer sets the tracer used for resolve spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Resolver.
func New(store Lookup, be backend.AssetBackend, opts ...Option) *Resolver {
	r := &Resolver{
		store:   store,
		backend: be,
		limit:   DefaultLimit,
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve looks up id and returns the items intersecting g, in backend
// order. A limit <= 0 uses the default. An unknown id is a NotFoundError;
// no intersecting item is an empty, non-nil result.
func (r *Resolver) Resolve(ctx context.Context, id string, g mosaic.QueryGeometry, limit int) ([]mosaic.AssetMatch, error) {
	ctx, span := r.start(ctx, "resolver.Resolve", id, g)
	defer span.End()

	entry, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, r.fail(span, err)
	}
	matches, err := r.resolve(ctx, entry, g, limit)
	if err != nil {
		return nil, r.fail(span, err)
	}
	r.done(span, matches)
	return matches, nil
}

// ResolveEntry resolves g against an entry the caller already holds. The
// registry is not read, so the entry's usage is left alone.
func (r *Resolver) ResolveEntry(ctx context.Context, entry *mosaic.Entry, g mosaic.QueryGeometry, limit int) ([]mosaic.AssetMatch, error) {
	ctx, span := r.start(ctx, "resolver.ResolveEntry", entry.ID, g)
	defer span.End()

	matches, err := r.resolve(ctx, entry, g, limit)
	if err != nil {
		return nil, r.fail(span, err)
	}
	r.done(span, matches)
	return matches, nil
}

func (r *Resolver) start(ctx context.Context, name, id string, g mosaic.QueryGeometry) (context.Context, trace.Span) {
	kind := "none"
	if g != nil {
		kind = g.Kind()
	}
	return r.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("mosaic.search_id", id),
		attribute.String("mosaic.geometry", kind),
	))
}

func (r *Resolver) fail(span trace.Span, err error) error {
	if !mosaic.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Resolver) done(span trace.Span, matches []mosaic.AssetMatch) {
	span.SetAttributes(attribute.Int("mosaic.assets.items", len(matches)))
	span.SetStatus(codes.Ok, "")
	metrics.ResolvedAssets.Observe(float64(len(matches)))
}

func (r *Resolver) resolve(ctx context.Context, entry *mosaic.Entry, g mosaic.QueryGeometry, limit int) ([]mosaic.AssetMatch, error) {
	id := entry.ID
	shape, err := ToWGS84(g)
	if err != nil {
		return nil, err
	}
	query, err := Query(entry.Definition, shape)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = r.limit
	}
	matches, err := r.backend.Assets(ctx, query, limit)
	if err != nil {
		r.logger.Error("asset query failed",
			"search_id", id,
			"backend", r.backend.Name(),
			"error", err,
		)
		return nil, err
	}
	if matches == nil {
		matches = []mosaic.AssetMatch{}
	}

	if r.logger.Enabled(ctx, slog.LevelDebug) {
		footprint, _ := geojson.ToWKT(shape)
		r.logger.Debug("resolved assets",
			"search_id", id,
			"geometry", g.Kind(),
			"footprint", footprint,
			"items", len(matches),
		)
	}
	return matches, nil
}
