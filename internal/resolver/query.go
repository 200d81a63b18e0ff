package resolver

import (
	"github.com/twpayne/go-geom"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/translate"
)

// Query builds the backend CQL2-JSON expression for def restricted to shape.
// Terms for absent definition fields are omitted. A nil shape leaves the
// spatial restriction to the definition alone.
func Query(def mosaic.SearchDefinition, shape geom.T) (map[string]any, error) {
	terms := []map[string]any{def.Filter}

	if len(def.Collections) > 0 {
		terms = append(terms, inTerm("collection", def.Collections))
	}
	if len(def.IDs) > 0 {
		terms = append(terms, inTerm("id", def.IDs))
	}
	if len(def.BBox) > 0 {
		bbox := make([]any, len(def.BBox))
		for i, v := range def.BBox {
			bbox[i] = v
		}
		terms = append(terms, intersects(map[string]any{"bbox": bbox}))
	}
	if shape != nil {
		literal, err := geometryLiteral(shape)
		if err != nil {
			return nil, err
		}
		terms = append(terms, intersects(literal))
	}

	return translate.And(terms...), nil
}

func inTerm(property string, values []string) map[string]any {
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return map[string]any{
		"op":   "in",
		"args": []any{map[string]any{"property": property}, list},
	}
}

func intersects(literal map[string]any) map[string]any {
	return map[string]any{
		"op":   "s_intersects",
		"args": []any{map[string]any{"property": "geometry"}, literal},
	}
}
