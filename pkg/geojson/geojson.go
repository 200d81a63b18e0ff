// Package geojson provides GeoJSON geometry types and utilities backed by go-geom.
package geojson

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"
	gogeojson "github.com/twpayne/go-geom/encoding/geojson"
	"github.com/twpayne/go-geom/encoding/wkt"
)

// ErrEmptyGeometry is returned when a geometry has no coordinates.
var ErrEmptyGeometry = errors.New("empty geometry")

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Decode converts the geometry into a go-geom value.
func (g *Geometry) Decode() (geom.T, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, err
	}
	var t geom.T
	if err := gogeojson.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode %s geometry: %w", g.Type, err)
	}
	return t, nil
}

// FromGeom encodes a go-geom value as a Geometry.
func FromGeom(t geom.T) (*Geometry, error) {
	data, err := gogeojson.Marshal(t)
	if err != nil {
		return nil, err
	}
	var g Geometry
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Bounds returns the 2D bounding box of t as [west, south, east, north].
func Bounds(t geom.T) ([]float64, error) {
	if t == nil || t.Empty() {
		return nil, ErrEmptyGeometry
	}
	b := t.Bounds()
	return []float64{b.Min(0), b.Min(1), b.Max(0), b.Max(1)}, nil
}

// NewPolygonFromBBox creates a polygon from a bounding box.
// bbox should be [west, south, east, north].
func NewPolygonFromBBox(bbox []float64) (*geom.Polygon, error) {
	if len(bbox) != 4 {
		return nil, fmt.Errorf("bbox must have 4 values, got %d", len(bbox))
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("bbox values must be finite, got %v", bbox)
		}
	}
	return geom.NewBounds(geom.XY).Set(bbox[0], bbox[1], bbox[2], bbox[3]).Polygon(), nil
}

// ToWKT converts a geometry to WKT, for logging.
func ToWKT(t geom.T) (string, error) {
	return wkt.Marshal(t)
}

// ParseBody decodes a request body holding a Feature, a FeatureCollection
// or a bare geometry and returns the geometries it contains, in order.
func ParseBody(data []byte) ([]geom.T, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("invalid GeoJSON: %w", err)
	}

	switch head.Type {
	case "FeatureCollection":
		var fc gogeojson.FeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("invalid FeatureCollection: %w", err)
		}
		out := make([]geom.T, 0, len(fc.Features))
		for i, f := range fc.Features {
			if f.Geometry == nil {
				return nil, fmt.Errorf("feature %d has no geometry", i)
			}
			out = append(out, f.Geometry)
		}
		if len(out) == 0 {
			return nil, ErrEmptyGeometry
		}
		return out, nil
	case "Feature":
		var f gogeojson.Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("invalid Feature: %w", err)
		}
		if f.Geometry == nil {
			return nil, ErrEmptyGeometry
		}
		return []geom.T{f.Geometry}, nil
	case "":
		return nil, fmt.Errorf("invalid GeoJSON: missing type")
	default:
		var t geom.T
		if err := gogeojson.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("invalid %s geometry: %w", head.Type, err)
		}
		if t == nil {
			return nil, ErrEmptyGeometry
		}
		return []geom.T{t}, nil
	}
}
