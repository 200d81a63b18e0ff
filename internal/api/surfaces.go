package api

import (
	"encoding/xml"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rkm/pgstac-mosaic/internal/links"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/tms"
)

// TileJSON is a TileJSON 2.2.0 document.
type TileJSON struct {
	TileJSON string     `json:"tilejson"`
	Name     string     `json:"name"`
	Version  string     `json:"version"`
	Scheme   string     `json:"scheme"`
	Tiles    []string   `json:"tiles"`
	MinZoom  int        `json:"minzoom"`
	MaxZoom  int        `json:"maxzoom"`
	Bounds   [4]float64 `json:"bounds"`
	Center   [3]float64 `json:"center"`
}

// surface is everything a tilejson, map or WMTS response needs.
type surface struct {
	entry   *mosaic.Entry
	set     *tms.TileMatrixSet
	minZoom int
	maxZoom int
	bounds  [4]float64
	params  url.Values
	tileURL string
}

// loadSurface resolves the entry (404 first), the tile matrix set and the
// tile URL template shared by the rendering surfaces.
func (h *Handlers) loadSurface(r *http.Request) (*surface, error) {
	entry, err := h.store.Get(r.Context(), chi.URLParam(r, "search_id"))
	if err != nil {
		return nil, err
	}

	id := chi.URLParam(r, "tileMatrixSetId")
	set, ok := tms.Get(id)
	if !ok {
		return nil, &mosaic.ValidationError{Msg: fmt.Sprintf("unknown tile matrix set %q", id)}
	}

	q := r.URL.Query()
	params, err := layerParams(entry.Metadata, q)
	if err != nil {
		return nil, err
	}

	s := &surface{entry: entry, set: set, params: params, minZoom: set.MinZoom, maxZoom: set.MaxZoom}
	if entry.Metadata.MinZoom != nil {
		s.minZoom = *entry.Metadata.MinZoom
	}
	if entry.Metadata.MaxZoom != nil {
		s.maxZoom = *entry.Metadata.MaxZoom
	}
	if s.minZoom, err = zoomParam(params, "minzoom", s.minZoom); err != nil {
		return nil, err
	}
	if s.maxZoom, err = zoomParam(params, "maxzoom", s.maxZoom); err != nil {
		return nil, err
	}
	if s.minZoom > s.maxZoom {
		return nil, &mosaic.ValidationError{Msg: fmt.Sprintf("minzoom (%d) must be <= maxzoom (%d)", s.minZoom, s.maxZoom)}
	}

	s.bounds = set.Bounds
	switch {
	case len(entry.Metadata.Bounds) == 4:
		copy(s.bounds[:], entry.Metadata.Bounds)
	case len(entry.Definition.BBox) == 4:
		copy(s.bounds[:], entry.Definition.BBox)
	}

	s.tileURL = h.tileURL(entry.ID, set.ID, params)
	return s, nil
}

// layerParams merges the named default layer (?layer=) under the request's
// own parameters.
func layerParams(md mosaic.Metadata, q url.Values) (url.Values, error) {
	out := url.Values{}
	if name := q.Get("layer"); name != "" {
		layer, ok := md.Layer(name)
		if !ok {
			return nil, &mosaic.ValidationError{Msg: fmt.Sprintf("unknown layer %q", name)}
		}
		for k, v := range layer.Params {
			out[k] = append([]string(nil), v...)
		}
	}
	for k, v := range q {
		if k == "layer" {
			continue
		}
		out[k] = v
	}
	return out, nil
}

func zoomParam(q url.Values, key string, def int) (int, error) {
	s := q.Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &mosaic.ValidationError{Msg: fmt.Sprintf("invalid %s %q", key, s)}
	}
	return n, nil
}

// tileURL builds the tile endpoint template, forwarding the parameters the
// tile endpoint accepts. Placeholders stay unescaped.
func (h *Handlers) tileURL(id, setID string, params url.Values) string {
	path := strings.NewReplacer(
		"{search_id}", id,
		"{tileMatrixSetId}", setID,
	).Replace(links.RouteTile)

	if scale := params.Get("tile_scale"); scale != "" && scale != "1" {
		path += "@" + scale + "x"
	}
	if format := params.Get("tile_format"); format != "" {
		path += "." + format
	}

	accepted := links.TileParams()
	forward := url.Values{}
	for k, v := range params {
		if accepted[k] && k != "tile_format" && k != "tile_scale" {
			forward[k] = v
		}
	}

	u := h.cfg.Mosaic.BaseURL + path
	if enc := forward.Encode(); enc != "" {
		u += "?" + enc
	}
	return u
}

// TileJSONDocument returns the TileJSON description of a mosaic.
// GET /searches/{search_id}/{tileMatrixSetId}/tilejson.json
func (h *Handlers) TileJSONDocument(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadSurface(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	name := s.entry.Metadata.Name
	if name == "" {
		name = s.entry.ID
	}
	b := s.bounds
	_ = WriteJSON(w, http.StatusOK, TileJSON{
		TileJSON: "2.2.0",
		Name:     name,
		Version:  "1.0.0",
		Scheme:   "xyz",
		Tiles:    []string{s.tileURL},
		MinZoom:  s.minZoom,
		MaxZoom:  s.maxZoom,
		Bounds:   b,
		Center:   [3]float64{(b[0] + b[2]) / 2, (b[1] + b[3]) / 2, float64(s.minZoom)},
	})
}

type wmtsCapabilities struct {
	XMLName xml.Name      `xml:"Capabilities"`
	XMLNS   string        `xml:"xmlns,attr"`
	OWS     string        `xml:"xmlns:ows,attr"`
	XLink   string        `xml:"xmlns:xlink,attr"`
	Version string        `xml:"version,attr"`
	Title   string        `xml:"ows:ServiceIdentification>ows:Title"`
	Service string        `xml:"ows:ServiceIdentification>ows:ServiceType"`
	SvcVer  string        `xml:"ows:ServiceIdentification>ows:ServiceTypeVersion"`
	Layer   wmtsLayer     `xml:"Contents>Layer"`
	Matrix  wmtsMatrixSet `xml:"Contents>TileMatrixSet"`
}

type wmtsLayer struct {
	Title       string          `xml:"ows:Title"`
	Identifier  string          `xml:"ows:Identifier"`
	LowerCorner string          `xml:"ows:WGS84BoundingBox>ows:LowerCorner"`
	UpperCorner string          `xml:"ows:WGS84BoundingBox>ows:UpperCorner"`
	Style       string          `xml:"Style>ows:Identifier"`
	Format      string          `xml:"Format"`
	Link        string          `xml:"TileMatrixSetLink>TileMatrixSet"`
	Resource    wmtsResourceURL `xml:"ResourceURL"`
}

type wmtsResourceURL struct {
	Format       string `xml:"format,attr"`
	ResourceType string `xml:"resourceType,attr"`
	Template     string `xml:"template,attr"`
}

type wmtsMatrixSet struct {
	Identifier string       `xml:"ows:Identifier"`
	CRS        string       `xml:"ows:SupportedCRS"`
	WellKnown  string       `xml:"WellKnownScaleSet"`
	Matrices   []wmtsMatrix `xml:"TileMatrix"`
}

type wmtsMatrix struct {
	Identifier string `xml:"ows:Identifier"`
	Width      int    `xml:"TileWidth"`
	Height     int    `xml:"TileHeight"`
	Cols       int    `xml:"MatrixWidth"`
	Rows       int    `xml:"MatrixHeight"`
}

var tileMediaTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"webp": "image/webp",
	"tif":  "image/tiff",
	"npy":  "application/x-binary",
}

// WMTSCapabilities returns a WMTS 1.0.0 capabilities document for a mosaic.
// GET /searches/{search_id}/{tileMatrixSetId}/WMTSCapabilities.xml
func (h *Handlers) WMTSCapabilities(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadSurface(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	format := s.params.Get("tile_format")
	if format == "" {
		format = "png"
	}
	mediaType, ok := tileMediaTypes[format]
	if !ok {
		h.writeMosaicError(w, r, &mosaic.ValidationError{Msg: fmt.Sprintf("unsupported tile format %q", format)})
		return
	}

	params := url.Values{}
	for k, v := range s.params {
		params[k] = v
	}
	params.Set("tile_format", format)
	// WMTS templates address tiles as {TileMatrix}/{TileCol}/{TileRow}.
	resource := strings.NewReplacer("{z}", "{TileMatrix}", "{x}", "{TileCol}", "{y}", "{TileRow}").
		Replace(h.tileURL(s.entry.ID, s.set.ID, params))

	crs := s.set.CRS
	if use, _ := strconv.ParseBool(s.params.Get("use_epsg")); use {
		crs = epsgCode(crs)
	}

	name := s.entry.Metadata.Name
	if name == "" {
		name = s.entry.ID
	}

	matrices := make([]wmtsMatrix, 0, s.maxZoom-s.minZoom+1)
	for z := s.minZoom; z <= s.maxZoom; z++ {
		cols, rows := s.set.MatrixSize(z)
		matrices = append(matrices, wmtsMatrix{
			Identifier: strconv.Itoa(z),
			Width:      s.set.TileSize,
			Height:     s.set.TileSize,
			Cols:       cols,
			Rows:       rows,
		})
	}

	doc := wmtsCapabilities{
		XMLNS:   "http://www.opengis.net/wmts/1.0",
		OWS:     "http://www.opengis.net/ows/1.1",
		XLink:   "http://www.w3.org/1999/xlink",
		Version: "1.0.0",
		Title:   h.cfg.Mosaic.Title,
		Service: "OGC WMTS",
		SvcVer:  "1.0.0",
		Layer: wmtsLayer{
			Title:       name,
			Identifier:  s.entry.ID,
			LowerCorner: fmt.Sprintf("%g %g", s.bounds[0], s.bounds[1]),
			UpperCorner: fmt.Sprintf("%g %g", s.bounds[2], s.bounds[3]),
			Style:       "default",
			Format:      mediaType,
			Link:        s.set.ID,
			Resource: wmtsResourceURL{
				Format:       mediaType,
				ResourceType: "tile",
				Template:     resource,
			},
		},
		Matrix: wmtsMatrixSet{
			Identifier: s.set.ID,
			CRS:        crs,
			WellKnown:  s.set.URI,
			Matrices:   matrices,
		},
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		h.logger.Error("failed to encode WMTS capabilities", "error", err)
	}
}

// epsgCode turns an OGC CRS URI into "EPSG:nnnn" when possible.
func epsgCode(crs string) string {
	const prefix = "http://www.opengis.net/def/crs/EPSG/0/"
	if code, ok := strings.CutPrefix(crs, prefix); ok {
		return "EPSG:" + code
	}
	return crs
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<meta name="viewport" content="width=device-width, initial-scale=1">
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>html, body, #map { height: 100%; margin: 0; }</style>
</head>
<body>
<div id="map" data-tilejson="{{.TileJSONURL}}"></div>
<script>
var el = document.getElementById('map');
var map = L.map(el);
fetch(el.dataset.tilejson)
  .then(function (res) { return res.json(); })
  .then(function (tj) {
    var b = tj.bounds;
    map.fitBounds([[b[1], b[0]], [b[3], b[2]]]);
    L.tileLayer(tj.tiles[0], {minZoom: tj.minzoom, maxZoom: tj.maxzoom}).addTo(map);
  });
</script>
</body>
</html>
`))

// MapViewer returns an HTML page displaying the mosaic's tiles.
// GET /searches/{search_id}/{tileMatrixSetId}/map.html
func (h *Handlers) MapViewer(w http.ResponseWriter, r *http.Request) {
	s, err := h.loadSurface(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	tileJSON := h.cfg.Mosaic.BaseURL + strings.NewReplacer(
		"{search_id}", s.entry.ID,
		"{tileMatrixSetId}", s.set.ID,
	).Replace(links.RouteTileJSON)
	if enc := r.URL.Query().Encode(); enc != "" {
		tileJSON += "?" + enc
	}

	name := s.entry.Metadata.Name
	if name == "" {
		name = s.entry.ID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := mapTemplate.Execute(w, struct{ Name, TileJSONURL string }{name, tileJSON}); err != nil {
		h.logger.Error("failed to render map viewer", "error", err)
	}
}
