package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	intstac "github.com/rkm/pgstac-mosaic/internal/stac"
	"github.com/rkm/pgstac-mosaic/internal/tms"
	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

// PointAssets returns the items whose footprint contains a point.
// GET /searches/{search_id}/point/{lonlat}/assets
// GET /collections/{collection_id}/point/{lonlat}/assets
func (h *Handlers) PointAssets(w http.ResponseWriter, r *http.Request) {
	coords, err := parseCoords(chi.URLParam(r, "lonlat"), 2)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	g := mosaic.Point{X: coords[0], Y: coords[1], CRS: r.URL.Query().Get("coord_crs")}
	h.writeAssets(w, r, g)
}

// TileAssets returns the items intersecting a tile.
// GET /searches/{search_id}/tiles/{tileMatrixSetId}/{z}/{x}/{y}/assets
// GET /collections/{collection_id}/tiles/{tileMatrixSetId}/{z}/{x}/{y}/assets
func (h *Handlers) TileAssets(w http.ResponseWriter, r *http.Request) {
	tile, err := parseTile(r, chi.URLParam(r, "y"))
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	h.writeAssets(w, r, tile)
}

// BBoxAssets returns the items intersecting a bounding box.
// GET /searches/{search_id}/bbox/{bbox}/assets
// GET /collections/{collection_id}/bbox/{bbox}/assets
func (h *Handlers) BBoxAssets(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBox(chi.URLParam(r, "bbox"), r.URL.Query().Get("coord_crs"))
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	h.writeAssets(w, r, bbox)
}

// FeatureAssets returns the items intersecting the geometry of a GeoJSON body.
// POST /searches/{search_id}/feature/assets
// POST /collections/{collection_id}/feature/assets
func (h *Handlers) FeatureAssets(w http.ResponseWriter, r *http.Request) {
	shapes, err := readGeometries(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	if len(shapes) != 1 {
		WriteDetail(w, http.StatusBadRequest, fmt.Sprintf("expected a single geometry, got %d", len(shapes)))
		return
	}
	h.writeAssets(w, r, shapes[0])
}

func (h *Handlers) writeAssets(w http.ResponseWriter, r *http.Request, g mosaic.QueryGeometry) {
	limit, err := h.assetLimit(r.URL.Query())
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	var assets []mosaic.AssetMatch
	if id := chi.URLParam(r, "search_id"); id != "" {
		assets, err = h.resolver.Resolve(r.Context(), id, g, limit)
	} else {
		var entry *mosaic.Entry
		if entry, err = h.entry(r); err == nil {
			assets, err = h.resolver.ResolveEntry(r.Context(), entry, g, limit)
		}
	}
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, assets)
}

// parseCoords parses n comma-separated finite numbers.
func parseCoords(s string, n int) ([]float64, error) {
	v, err := intstac.ParseFloatList(s, n)
	if err != nil {
		return nil, &mosaic.ValidationError{Msg: fmt.Sprintf("invalid coordinates %q", s), Err: err}
	}
	return v, nil
}

func parseBBox(s, crs string) (mosaic.BBox, error) {
	v, err := parseCoords(s, 4)
	if err != nil {
		return mosaic.BBox{}, err
	}
	return mosaic.BBox{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3], CRS: crs}, nil
}

// parseTile reads the tile matrix set and z/x from the route and y from last,
// which may carry a scale and format suffix ("y@2x.png").
func parseTile(r *http.Request, last string) (mosaic.Tile, error) {
	tile := mosaic.Tile{TileMatrixSet: chi.URLParam(r, "tileMatrixSetId")}
	if tile.TileMatrixSet == "" {
		tile.TileMatrixSet = tms.DefaultID
	}

	y, _, _, err := splitTileSuffix(last)
	if err != nil {
		return tile, err
	}

	for _, f := range []struct {
		name string
		raw  string
		dst  *int
	}{
		{"z", chi.URLParam(r, "z"), &tile.Z},
		{"x", chi.URLParam(r, "x"), &tile.X},
		{"y", y, &tile.Y},
	} {
		n, err := strconv.Atoi(f.raw)
		if err != nil {
			return tile, &mosaic.ValidationError{Msg: fmt.Sprintf("invalid tile %s %q", f.name, f.raw)}
		}
		*f.dst = n
	}
	return tile, nil
}

// splitTileSuffix splits "12@2x.png" into "12", scale 2 and format "png".
func splitTileSuffix(s string) (y string, scale int, format string, err error) {
	scale = 1
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s, format = s[:i], s[i+1:]
	}
	if i := strings.IndexByte(s, '@'); i >= 0 {
		suffix := strings.TrimSuffix(s[i+1:], "x")
		s = s[:i]
		scale, err = strconv.Atoi(suffix)
		if err != nil || scale < 1 || scale > 4 {
			return "", 0, "", &mosaic.ValidationError{Msg: fmt.Sprintf("invalid tile scale %q", suffix)}
		}
	}
	return s, scale, format, nil
}

// readGeometries decodes a Feature, FeatureCollection or bare geometry body.
func readGeometries(r *http.Request) ([]mosaic.Polygon, error) {
	data, err := readBody(r)
	if err != nil {
		return nil, err
	}
	return decodeGeometries(data)
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, &mosaic.ValidationError{Msg: "request body is required"}
	}
	return data, nil
}

func decodeGeometries(data []byte) ([]mosaic.Polygon, error) {
	shapes, err := geojson.ParseBody(data)
	if err != nil {
		return nil, mosaic.NewValidationError(err)
	}
	out := make([]mosaic.Polygon, len(shapes))
	for i, s := range shapes {
		out[i] = mosaic.Polygon{Geom: s}
	}
	return out, nil
}
