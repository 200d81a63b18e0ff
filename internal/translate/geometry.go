package translate

import (
	"encoding/json"
	"fmt"

	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

// IntersectsTerm converts an intersects geometry into a CQL2 s_intersects
// predicate on the item geometry.
func IntersectsTerm(g *geojson.Geometry) (map[string]any, error) {
	if g == nil {
		return nil, nil
	}
	t, err := g.Decode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	if t.Empty() {
		return nil, fmt.Errorf("%w: empty %s", ErrInvalidGeometry, g.Type)
	}

	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}
	var literal map[string]any
	if err := json.Unmarshal(data, &literal); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGeometry, err)
	}

	return map[string]any{
		"op":   "s_intersects",
		"args": []any{map[string]any{"property": "geometry"}, literal},
	}, nil
}
