package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/twpayne/go-geom"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

// ErrUnsupportedExpression is returned when the in-memory evaluator meets a
// CQL2 construct it does not implement.
var ErrUnsupportedExpression = errors.New("unsupported expression")

// Item is one catalog entry held by the in-memory backend.
type Item struct {
	ID         string
	Collection string
	Geometry   geom.T
	BBox       []float64
	Datetime   time.Time
	Properties map[string]any
	// Assets keeps the asset keys in catalog order.
	Assets []string

	footprint *shape
}

// Memory implements AssetBackend over a fixed, in-process catalog. Items are
// returned in insertion order.
type Memory struct {
	items  []*Item
	logger *slog.Logger
}

// NewMemory creates an in-memory backend holding items. Items without a
// bbox get one computed from their geometry.
func NewMemory(items []*Item, logger *slog.Logger) (*Memory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for i, it := range items {
		if it.ID == "" {
			return nil, fmt.Errorf("item %d: missing id", i)
		}
		if it.Geometry == nil {
			return nil, fmt.Errorf("item %s: missing geometry", it.ID)
		}
		if len(it.BBox) == 0 {
			bbox, err := geojson.Bounds(it.Geometry)
			if err != nil {
				return nil, fmt.Errorf("item %s: %w", it.ID, err)
			}
			it.BBox = bbox
		}
		if it.Assets == nil {
			it.Assets = []string{}
		}
		fp, err := newShape(it.Geometry)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		it.footprint = fp
	}
	return &Memory{items: items, logger: logger}, nil
}

// Name returns the backend name.
func (m *Memory) Name() string {
	return "memory"
}

// Operators returns the CQL2 operators this backend can evaluate.
func (m *Memory) Operators() []string {
	return append([]string(nil), MemoryOperators...)
}

// Len returns the number of items in the catalog.
func (m *Memory) Len() int {
	return len(m.items)
}

// Assets implements AssetBackend. A non-positive limit returns every match.
func (m *Memory) Assets(ctx context.Context, query map[string]any, limit int) ([]mosaic.AssetMatch, error) {
	if err := ctx.Err(); err != nil {
		return nil, &mosaic.BackendUnavailableError{Op: "assets", Err: err}
	}

	matches := make([]mosaic.AssetMatch, 0)
	for _, it := range m.items {
		if limit > 0 && len(matches) >= limit {
			break
		}
		ok, err := evaluate(query, it)
		if err != nil {
			return nil, fmt.Errorf("evaluate item %s: %w", it.ID, err)
		}
		if !ok {
			continue
		}
		matches = append(matches, mosaic.AssetMatch{
			ID:         it.ID,
			Collection: it.Collection,
			BBox:       append([]float64(nil), it.BBox...),
			Assets:     append([]string{}, it.Assets...),
		})
	}

	m.logger.Debug("resolved assets", "backend", m.Name(), "items", len(matches))
	return matches, nil
}

// Collections implements AssetBackend.
func (m *Memory) Collections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, &mosaic.BackendUnavailableError{Op: "collections", Err: err}
	}
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for _, it := range m.items {
		if it.Collection == "" || seen[it.Collection] {
			continue
		}
		seen[it.Collection] = true
		ids = append(ids, it.Collection)
	}
	sort.Strings(ids)
	return ids, nil
}

// Health implements AssetBackend.
func (m *Memory) Health(ctx context.Context) (*Health, error) {
	return &Health{
		Online:   ctx.Err() == nil,
		Versions: map[string]string{"memory": fmt.Sprintf("%d items", len(m.items))},
	}, nil
}

// itemDocument is the subset of a STAC item read by LoadItems.
type itemDocument struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Geometry   json.RawMessage `json:"geometry"`
	BBox       []float64       `json:"bbox"`
	Properties map[string]any  `json:"properties"`
	Assets     json.RawMessage `json:"assets"`
}

// LoadItems reads a GeoJSON FeatureCollection of STAC items.
func LoadItems(r io.Reader) ([]*Item, error) {
	var fc struct {
		Type     string         `json:"type"`
		Features []itemDocument `json:"features"`
	}
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, fmt.Errorf("catalog must be a FeatureCollection, got %q", fc.Type)
	}

	items := make([]*Item, 0, len(fc.Features))
	for i, doc := range fc.Features {
		it, err := doc.item()
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		items = append(items, it)
	}
	return items, nil
}

func (d itemDocument) item() (*Item, error) {
	if d.ID == "" {
		return nil, errors.New("missing id")
	}
	geoms, err := geojson.ParseBody(d.Geometry)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", d.ID, err)
	}
	it := &Item{
		ID:         d.ID,
		Collection: d.Collection,
		Geometry:   geoms[0],
		BBox:       d.BBox,
		Properties: d.Properties,
	}
	if it.Properties == nil {
		it.Properties = map[string]any{}
	}
	if s, ok := it.Properties["datetime"].(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("item %s: datetime: %w", d.ID, err)
		}
		it.Datetime = t.UTC()
	}
	if len(d.Assets) > 0 {
		if it.Assets, err = objectKeys(d.Assets); err != nil {
			return nil, fmt.Errorf("item %s: assets: %w", d.ID, err)
		}
	}
	return it, nil
}

// objectKeys returns the keys of a JSON object in document order.
func objectKeys(raw json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	keys := make([]string, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		keys = append(keys, tok.(string))
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
