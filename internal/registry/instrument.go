package registry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rkm/pgstac-mosaic/internal/metrics"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
)

const tracerName = "github.com/rkm/pgstac-mosaic/internal/registry"

// Instrumented wraps a Store with tracing spans and operation counters.
type Instrumented struct {
	next   Store
	tracer trace.Tracer
}

// Instrument decorates next. A nil tracer uses the global provider.
func Instrument(next Store, tracer trace.Tracer) *Instrumented {
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Instrumented{next: next, tracer: tracer}
}

// Register implements Store.
func (s *Instrumented) Register(ctx context.Context, def mosaic.SearchDefinition, md mosaic.Metadata) (*mosaic.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Register")
	defer span.End()

	entry, err := s.next.Register(ctx, def, md)
	if entry != nil {
		span.SetAttributes(attribute.String("mosaic.search_id", entry.ID))
	}
	s.finish(span, "register", err)
	return entry, err
}

// Get implements Store.
func (s *Instrumented) Get(ctx context.Context, id string) (*mosaic.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Get", trace.WithAttributes(attribute.String("mosaic.search_id", id)))
	defer span.End()

	entry, err := s.next.Get(ctx, id)
	s.finish(span, "get", err)
	return entry, err
}

// Peek implements Store.
func (s *Instrumented) Peek(ctx context.Context, id string) (*mosaic.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "registry.Peek", trace.WithAttributes(attribute.String("mosaic.search_id", id)))
	defer span.End()

	entry, err := s.next.Peek(ctx, id)
	s.finish(span, "peek", err)
	return entry, err
}

// List implements Store.
func (s *Instrumented) List(ctx context.Context, params ListParams) (*ListResult, error) {
	ctx, span := s.tracer.Start(ctx, "registry.List", trace.WithAttributes(
		attribute.Int("mosaic.list.limit", params.Limit),
		attribute.Int("mosaic.list.offset", params.Offset),
	))
	defer span.End()

	result, err := s.next.List(ctx, params)
	if result != nil {
		span.SetAttributes(attribute.Int("mosaic.list.matched", result.Matched))
	}
	s.finish(span, "list", err)
	return result, err
}

func (s *Instrumented) finish(span trace.Span, op string, err error) {
	metrics.RegistryOperations.WithLabelValues(op, outcome(err)).Inc()
	if err != nil && !mosaic.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case mosaic.IsNotFound(err):
		return "not_found"
	case mosaic.IsValidation(err):
		return "invalid"
	case mosaic.IsBackendUnavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}
