package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	gogeojson "github.com/twpayne/go-geom/encoding/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/render"
)

// maxStatisticsWorkers bounds concurrent resolutions of a FeatureCollection.
const maxStatisticsWorkers = 4

// Tile renders one tile of a mosaic.
// GET /searches/{search_id}/tiles/{tileMatrixSetId}/{z}/{x}/{y}[@{scale}x][.{format}]
func (h *Handlers) Tile(w http.ResponseWriter, r *http.Request) {
	last := chi.URLParam(r, "y")
	tile, err := parseTile(r, last)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	_, scale, format, _ := splitTileSuffix(last)

	params := r.URL.Query()
	if scale > 1 {
		params.Set("tile_scale", strconv.Itoa(scale))
	}
	h.renderImage(w, r, tile, params, format)
}

// BBoxImage renders a bounding box crop of a mosaic.
// GET /searches/{search_id}/bbox/{bbox}[.{format}]
func (h *Handlers) BBoxImage(w http.ResponseWriter, r *http.Request) {
	coords, format := splitFormat(chi.URLParam(r, "bbox"))
	bbox, err := parseBBox(coords, r.URL.Query().Get("coord_crs"))
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	h.renderImage(w, r, bbox, r.URL.Query(), format)
}

// FeatureImage renders the mosaic clipped to a GeoJSON Feature body.
// POST /searches/{search_id}/feature
func (h *Handlers) FeatureImage(w http.ResponseWriter, r *http.Request) {
	shapes, err := readGeometries(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	if len(shapes) != 1 {
		WriteDetail(w, http.StatusBadRequest, "expected a single Feature")
		return
	}
	q := r.URL.Query()
	h.renderImage(w, r, shapes[0], q, q.Get("format"))
}

func (h *Handlers) renderImage(w http.ResponseWriter, r *http.Request, g mosaic.QueryGeometry, params map[string][]string, format string) {
	entry, err := h.entry(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	req, err := h.renderRequest(r.Context(), r, entry, g)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	req.Params = params
	req.Format = format

	img, err := h.renderer.Render(r.Context(), *req)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", img.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

// renderRequest resolves the assets of g against entry.
func (h *Handlers) renderRequest(ctx context.Context, r *http.Request, entry *mosaic.Entry, g mosaic.QueryGeometry) (*render.Request, error) {
	limit, err := h.assetLimit(r.URL.Query())
	if err != nil {
		return nil, err
	}
	assets, err := h.resolver.ResolveEntry(ctx, entry, g, limit)
	if err != nil {
		return nil, err
	}
	return &render.Request{Entry: entry, Assets: assets, Geometry: g}, nil
}

// Statistics computes statistics for each geometry of a Feature or
// FeatureCollection body. The entry is read once, then features are resolved
// concurrently against it; any failure fails the whole request.
// POST /searches/{search_id}/statistics
func (h *Handlers) Statistics(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	shapes, err := decodeGeometries(data)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(data, &head)

	entry, err := h.entry(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	params := r.URL.Query()
	features := make([]*gogeojson.Feature, len(shapes))

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(maxStatisticsWorkers)
	for i, shape := range shapes {
		g.Go(func() error {
			req, err := h.renderRequest(ctx, r, entry, shape)
			if err != nil {
				return err
			}
			req.Params = params
			stats, err := h.renderer.Statistics(ctx, *req)
			if err != nil {
				return err
			}
			features[i] = &gogeojson.Feature{
				Geometry:   shape.Geom,
				Properties: map[string]any{"statistics": stats},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	if head.Type != "FeatureCollection" {
		_ = WriteJSON(w, http.StatusOK, features[0])
		return
	}
	_ = WriteJSON(w, http.StatusOK, &gogeojson.FeatureCollection{Features: features})
}

// splitFormat splits "0.5,1,2,3.png" into coordinates and format. A numeric
// suffix belongs to the last coordinate.
func splitFormat(s string) (string, string) {
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return s, ""
	}
	suffix := s[i+1:]
	if _, err := strconv.ParseFloat(suffix, 64); err == nil || strings.Contains(suffix, ",") {
		return s, ""
	}
	return s[:i], suffix
}
