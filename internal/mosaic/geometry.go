package mosaic

import (
	"fmt"

	"github.com/twpayne/go-geom"
)

// Coordinate reference systems accepted for query geometries.
const (
	CRS84       = "EPSG:4326"
	WebMercator = "EPSG:3857"
)

// QueryGeometry is the geometry half of an asset lookup. Exactly one of the
// concrete types below implements it.
type QueryGeometry interface {
	Kind() string
	isQueryGeometry()
}

// Point is a single location in CRS (defaults to EPSG:4326).
type Point struct {
	X, Y float64
	CRS  string
}

// Tile addresses one tile of a named tile matrix set.
type Tile struct {
	TileMatrixSet string
	Z, X, Y       int
}

// BBox is an axis-aligned rectangle in CRS (defaults to EPSG:4326).
type BBox struct {
	MinX, MinY, MaxX, MaxY float64
	CRS                    string
}

// Polygon is an arbitrary geometry, typically a feature body, in EPSG:4326.
type Polygon struct {
	Geom geom.T
}

func (Point) Kind() string   { return "point" }
func (Tile) Kind() string    { return "tile" }
func (BBox) Kind() string    { return "bbox" }
func (Polygon) Kind() string { return "polygon" }

func (Point) isQueryGeometry()   {}
func (Tile) isQueryGeometry()    {}
func (BBox) isQueryGeometry()    {}
func (Polygon) isQueryGeometry() {}

// Validate checks a BBox for ordering.
func (b BBox) Validate() error {
	if b.MinX > b.MaxX || b.MinY > b.MaxY {
		return &ValidationError{Msg: fmt.Sprintf("invalid bbox %v,%v,%v,%v: min must not exceed max", b.MinX, b.MinY, b.MaxX, b.MaxY)}
	}
	return nil
}

// Bounds returns the rectangle as go-geom bounds.
func (b BBox) Bounds() *geom.Bounds {
	return geom.NewBounds(geom.XY).Set(b.MinX, b.MinY, b.MaxX, b.MaxY)
}
