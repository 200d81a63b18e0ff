package resolver

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/twpayne/go-geom"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/tms"
	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

// ToWGS84 converts a query geometry into a single go-geom value in
// EPSG:4326. Points stay points; tiles and boxes become polygons.
func ToWGS84(g mosaic.QueryGeometry) (geom.T, error) {
	switch v := g.(type) {
	case mosaic.Point:
		if !finite(v.X, v.Y) {
			return nil, &mosaic.ValidationError{Msg: fmt.Sprintf("invalid point %v,%v: coordinates must be finite", v.X, v.Y)}
		}
		x, y, err := reproject(v.X, v.Y, v.CRS)
		if err != nil {
			return nil, err
		}
		return geom.NewPointFlat(geom.XY, []float64{x, y}), nil

	case mosaic.Tile:
		id := v.TileMatrixSet
		if id == "" {
			id = tms.DefaultID
		}
		set, ok := tms.Get(id)
		if !ok {
			return nil, &mosaic.ValidationError{Msg: fmt.Sprintf("unknown tile matrix set %q", id)}
		}
		b, err := set.TileBounds(v.Z, v.X, v.Y)
		if err != nil {
			return nil, &mosaic.ValidationError{Msg: err.Error()}
		}
		return geojson.NewPolygonFromBBox(b[:])

	case mosaic.BBox:
		if !finite(v.MinX, v.MinY, v.MaxX, v.MaxY) {
			return nil, &mosaic.ValidationError{Msg: "invalid bbox: coordinates must be finite"}
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		minX, minY, err := reproject(v.MinX, v.MinY, v.CRS)
		if err != nil {
			return nil, err
		}
		maxX, maxY, err := reproject(v.MaxX, v.MaxY, v.CRS)
		if err != nil {
			return nil, err
		}
		return geojson.NewPolygonFromBBox([]float64{minX, minY, maxX, maxY})

	case mosaic.Polygon:
		if v.Geom == nil || v.Geom.Empty() {
			return nil, &mosaic.ValidationError{Msg: "feature geometry must not be empty"}
		}
		return v.Geom, nil

	case nil:
		return nil, &mosaic.ValidationError{Msg: "a query geometry is required"}
	}
	return nil, &mosaic.ValidationError{Msg: fmt.Sprintf("unsupported geometry %q", g.Kind())}
}

// reproject returns x, y in EPSG:4326.
func reproject(x, y float64, crs string) (float64, float64, error) {
	switch crs {
	case "", mosaic.CRS84, "OGC:CRS84":
		return x, y, nil
	case mosaic.WebMercator:
		lon, lat := tms.MercatorToLonLat(x, y)
		return lon, lat, nil
	}
	return 0, 0, &mosaic.ValidationError{Msg: fmt.Sprintf("unsupported coord_crs %q, use %s or %s", crs, mosaic.CRS84, mosaic.WebMercator)}
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// geometryLiteral encodes t as a CQL2-JSON geometry literal.
func geometryLiteral(t geom.T) (map[string]any, error) {
	g, err := geojson.FromGeom(t)
	if err != nil {
		return nil, fmt.Errorf("encode query geometry: %w", err)
	}
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode query geometry: %w", err)
	}
	var literal map[string]any
	if err := json.Unmarshal(data, &literal); err != nil {
		return nil, fmt.Errorf("encode query geometry: %w", err)
	}
	return literal, nil
}
