// Package links builds the discovery links of a registered mosaic from a
// static table of rendering endpoint contracts.
package links

import (
	"net/url"
	"sort"
)

// Route templates shared by the router and the link builder.
const (
	RouteInfo     = "/searches/{search_id}/info"
	RouteTileJSON = "/searches/{search_id}/{tileMatrixSetId}/tilejson.json"
	RouteMap      = "/searches/{search_id}/{tileMatrixSetId}/map.html"
	RouteWMTS     = "/searches/{search_id}/{tileMatrixSetId}/WMTSCapabilities.xml"
	RouteTile     = "/searches/{search_id}/tiles/{tileMatrixSetId}/{z}/{x}/{y}"
)

// Endpoint kinds, doubling as link relations.
const (
	KindTileJSON = "tilejson"
	KindMap      = "map"
	KindWMTS     = "wmts"
)

// Contract declares the query parameters one rendering endpoint accepts.
type Contract struct {
	Kind      string
	Route     string
	Title     string
	MediaType string
	Accepted  map[string]bool
	// RequireOneOf lists parameters of which a layer must set at least one.
	RequireOneOf []string
}

// Check returns the layer parameters the endpoint does not accept and, when
// none of RequireOneOf is present, the required alternatives.
func (c Contract) Check(params url.Values) (unknown, missing []string) {
	for k := range params {
		if !c.Accepted[k] {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)

	if len(c.RequireOneOf) > 0 {
		found := false
		for _, k := range c.RequireOneOf {
			if _, ok := params[k]; ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, c.RequireOneOf...)
		}
	}
	return unknown, missing
}

// renderParams are accepted by every tile-producing endpoint.
var renderParams = []string{
	// dataset selection
	"assets", "expression", "asset_bidx", "asset_as_band", "bidx",
	// pixel handling
	"nodata", "unscale", "resampling", "reproject", "pixel_selection",
	// post processing
	"algorithm", "algorithm_params", "rescale", "color_formula",
	"colormap", "colormap_name", "return_mask",
	// mosaic backend limits
	"scan_limit", "items_limit", "time_limit", "exitwhenfull", "skipcovered",
	"buffer", "padding",
}

func accepted(extra ...string) map[string]bool {
	m := make(map[string]bool, len(renderParams)+len(extra))
	for _, k := range renderParams {
		m[k] = true
	}
	for _, k := range extra {
		m[k] = true
	}
	return m
}

// DefaultContracts returns the rendering endpoint table in link order.
func DefaultContracts() []Contract {
	dataset := []string{"assets", "expression"}
	return []Contract{
		{
			Kind:         KindTileJSON,
			Route:        RouteTileJSON,
			Title:        "TileJSON link",
			MediaType:    "application/json",
			Accepted:     accepted("tile_format", "tile_scale", "minzoom", "maxzoom"),
			RequireOneOf: dataset,
		},
		{
			Kind:         KindMap,
			Route:        RouteMap,
			Title:        "Map viewer link",
			MediaType:    "text/html",
			Accepted:     accepted("tile_format", "tile_scale", "minzoom", "maxzoom"),
			RequireOneOf: dataset,
		},
		{
			Kind:         KindWMTS,
			Route:        RouteWMTS,
			Title:        "WMTS link",
			MediaType:    "application/xml",
			Accepted:     accepted("tile_format", "tile_scale", "minzoom", "maxzoom", "use_epsg"),
			RequireOneOf: dataset,
		},
	}
}

// TileParams returns the query parameters accepted by the tile endpoint.
func TileParams() map[string]bool {
	return accepted("tile_format", "tile_scale")
}
