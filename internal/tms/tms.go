// Package tms implements the tile matrix sets served by the mosaic endpoints
// and the EPSG:3857 <-> EPSG:4326 transforms they need.
package tms

import (
	"fmt"
	"math"
	"sort"
)

const (
	earthRadius    = 6378137.0
	originShift    = math.Pi * earthRadius
	maxMercatorLat = 85.0511287798066
)

// Identifiers of the supported tile matrix sets.
const (
	WebMercatorQuad = "WebMercatorQuad"
	WorldCRS84Quad  = "WorldCRS84Quad"
	WGS1984Quad     = "WGS1984Quad"
)

// DefaultID is used by routes that do not name a tile matrix set.
const DefaultID = WebMercatorQuad

// TileMatrixSet describes one tiling grid.
type TileMatrixSet struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	CRS      string     `json:"crs"`
	URI      string     `json:"uri"`
	Bounds   [4]float64 `json:"bbox"`
	TileSize int        `json:"tileSize"`
	MinZoom  int        `json:"minzoom"`
	MaxZoom  int        `json:"maxzoom"`

	// columns at zoom 0; rows at zoom 0 are always 1
	baseCols int
	mercator bool
}

var registry = map[string]*TileMatrixSet{
	WebMercatorQuad: {
		ID:       WebMercatorQuad,
		Title:    "Google Maps Compatible for the World",
		CRS:      "http://www.opengis.net/def/crs/EPSG/0/3857",
		URI:      "http://www.opengis.net/def/tilematrixset/OGC/1.0/WebMercatorQuad",
		Bounds:   [4]float64{-180, -maxMercatorLat, 180, maxMercatorLat},
		TileSize: 256,
		MinZoom:  0,
		MaxZoom:  24,
		baseCols: 1,
		mercator: true,
	},
	WorldCRS84Quad: {
		ID:       WorldCRS84Quad,
		Title:    "CRS84 for the World",
		CRS:      "http://www.opengis.net/def/crs/OGC/1.3/CRS84",
		URI:      "http://www.opengis.net/def/tilematrixset/OGC/1.0/WorldCRS84Quad",
		Bounds:   [4]float64{-180, -90, 180, 90},
		TileSize: 256,
		MinZoom:  0,
		MaxZoom:  23,
		baseCols: 2,
	},
	WGS1984Quad: {
		ID:       WGS1984Quad,
		Title:    "EPSG:4326 for the World",
		CRS:      "http://www.opengis.net/def/crs/EPSG/0/4326",
		URI:      "http://www.opengis.net/def/tilematrixset/OGC/1.0/WGS1984Quad",
		Bounds:   [4]float64{-180, -90, 180, 90},
		TileSize: 256,
		MinZoom:  0,
		MaxZoom:  23,
		baseCols: 2,
	},
}

// Get returns the tile matrix set with the given id.
func Get(id string) (*TileMatrixSet, bool) {
	t, ok := registry[id]
	return t, ok
}

// IDs returns the supported identifiers in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MatrixSize returns the number of columns and rows at zoom z.
func (t *TileMatrixSet) MatrixSize(z int) (cols, rows int) {
	n := 1 << uint(z)
	return t.baseCols * n, n
}

// TileBounds returns the WGS84 [west, south, east, north] of tile z/x/y.
func (t *TileMatrixSet) TileBounds(z, x, y int) ([4]float64, error) {
	if z < t.MinZoom || z > t.MaxZoom {
		return [4]float64{}, fmt.Errorf("zoom %d outside %s range %d-%d", z, t.ID, t.MinZoom, t.MaxZoom)
	}
	cols, rows := t.MatrixSize(z)
	if x < 0 || x >= cols || y < 0 || y >= rows {
		return [4]float64{}, fmt.Errorf("tile %d/%d/%d outside %s matrix %dx%d", z, x, y, t.ID, cols, rows)
	}

	if t.mercator {
		size := 2 * originShift / float64(cols)
		minX := -originShift + float64(x)*size
		maxY := originShift - float64(y)*size
		west, north := MercatorToLonLat(minX, maxY)
		east, south := MercatorToLonLat(minX+size, maxY-size)
		return [4]float64{west, south, east, north}, nil
	}

	size := 360.0 / float64(cols)
	west := -180 + float64(x)*size
	north := 90 - float64(y)*size
	return [4]float64{west, north - size, west + size, north}, nil
}

// TileForPoint returns the tile at zoom z containing the WGS84 point.
func (t *TileMatrixSet) TileForPoint(lon, lat float64, z int) (x, y int) {
	cols, rows := t.MatrixSize(z)
	var fx, fy float64
	if t.mercator {
		mx, my := LonLatToMercator(lon, lat)
		fx = (mx + originShift) / (2 * originShift)
		fy = (originShift - my) / (2 * originShift)
	} else {
		fx = (lon + 180) / 360
		fy = (90 - lat) / 180
	}
	x = clamp(int(math.Floor(fx*float64(cols))), 0, cols-1)
	y = clamp(int(math.Floor(fy*float64(rows))), 0, rows-1)
	return x, y
}

// MercatorToLonLat converts EPSG:3857 metres to EPSG:4326 degrees.
func MercatorToLonLat(x, y float64) (lon, lat float64) {
	lon = x / earthRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

// LonLatToMercator converts EPSG:4326 degrees to EPSG:3857 metres.
// Latitudes are clamped to the Web Mercator limit.
func LonLatToMercator(lon, lat float64) (x, y float64) {
	lat = math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	x = lon * math.Pi / 180 * earthRadius
	y = math.Log(math.Tan(math.Pi/4+lat*math.Pi/360)) * earthRadius
	return x, y
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
