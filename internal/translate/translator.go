// Package translate normalizes registration requests into canonical mosaic
// search definitions.
package translate

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/stac"
	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

// Query is a raw search as posted by a client: shorthand fields, an explicit
// CQL2 filter, or both.
type Query struct {
	Collections []string          `json:"collections,omitempty"`
	IDs         []string          `json:"ids,omitempty"`
	BBox        []float64         `json:"bbox,omitempty"`
	Intersects  *geojson.Geometry `json:"intersects,omitempty"`
	Datetime    string            `json:"datetime,omitempty"`
	Filter      map[string]any    `json:"filter,omitempty"`
	FilterLang  string            `json:"filter-lang,omitempty"`

	// All marks an intentionally unconstrained search over every item.
	All bool `json:"all,omitempty"`
}

// Normalizer turns a Query into a canonical SearchDefinition. It is pure and
// safe for concurrent use.
type Normalizer struct {
	logger    *slog.Logger
	operators map[string]bool
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithOperators limits filters to the named operators. An empty list keeps
// the full CQL2 set.
func WithOperators(ops ...string) Option {
	return func(n *Normalizer) {
		if len(ops) == 0 {
			n.operators = nil
			return
		}
		n.operators = make(map[string]bool, len(ops))
		for _, op := range ops {
			n.operators[strings.ToLower(op)] = true
		}
	}
}

// NewNormalizer creates a new normalizer.
func NewNormalizer(logger *slog.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{logger: logger}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates q and returns its canonical definition. Every failure
// is a *mosaic.ValidationError.
func (n *Normalizer) Normalize(q Query) (mosaic.SearchDefinition, error) {
	def, err := n.normalize(q)
	if err != nil {
		return mosaic.SearchDefinition{}, mosaic.NewValidationError(err)
	}
	return def, nil
}

func (n *Normalizer) normalize(q Query) (mosaic.SearchDefinition, error) {
	def := mosaic.SearchDefinition{FilterLang: mosaic.FilterLangCQL2JSON}

	switch strings.ToLower(q.FilterLang) {
	case "", mosaic.FilterLangCQL2JSON:
	default:
		return def, fmt.Errorf("%w: %q (only %s is accepted)", ErrUnsupportedFilterLang, q.FilterLang, mosaic.FilterLangCQL2JSON)
	}

	if len(q.BBox) > 0 {
		if err := stac.ValidateBBox(q.BBox); err != nil {
			return def, fmt.Errorf("%w: %v", ErrInvalidBBox, err)
		}
		def.BBox = append([]float64(nil), q.BBox...)
	}

	collections, err := normalizeSet("collection", q.Collections)
	if err != nil {
		return def, err
	}
	ids, err := normalizeSet("id", q.IDs)
	if err != nil {
		return def, err
	}

	if err := ValidateFilter(q.Filter); err != nil {
		return def, err
	}
	if op := n.firstUnsupported(q.Filter); op != "" {
		return def, fmt.Errorf("%w: '%s' is not available on this backend", ErrUnsupportedOperator, op)
	}
	// Shorthand sets and the filter are ANDed by the resolver, so a filter
	// that also constrains collection or id narrows the search further.
	def.Collections = collections
	def.IDs = ids

	timeTerm, err := DateTimeTerm(q.Datetime)
	if err != nil {
		return def, err
	}
	spaceTerm, err := IntersectsTerm(q.Intersects)
	if err != nil {
		return def, err
	}
	def.Filter = CanonicalizeFilter(And(q.Filter, timeTerm, spaceTerm))

	if def.IsUnconstrained() && !q.All {
		return def, fmt.Errorf("%w: set \"all\": true to register a search over every item", ErrUnconstrained)
	}
	if def.IsUnconstrained() {
		n.logger.Debug("normalized unconstrained search")
	}
	return def, nil
}

// firstUnsupported returns the first operator of node outside the
// configured set, or "" when every operator is allowed.
func (n *Normalizer) firstUnsupported(node any) string {
	if n.operators == nil {
		return ""
	}
	switch v := node.(type) {
	case map[string]any:
		if op, ok := v["op"].(string); ok && !n.operators[strings.ToLower(op)] {
			return op
		}
		for _, child := range v {
			if op := n.firstUnsupported(child); op != "" {
				return op
			}
		}
	case []any:
		for _, child := range v {
			if op := n.firstUnsupported(child); op != "" {
				return op
			}
		}
	}
	return ""
}

// normalizeSet trims, de-duplicates and sorts identifiers.
func normalizeSet(field string, values []string) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for i, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, fmt.Errorf("%s at index %d cannot be empty", field, i)
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}
