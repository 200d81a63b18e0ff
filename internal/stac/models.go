// Package stac provides the STAC-flavoured API documents served next to the
// mosaic endpoints, wrapping planetlabs/go-stac for link types.
package stac

import (
	"time"

	gostac "github.com/planetlabs/go-stac"
)

// Link is re-exported from planetlabs/go-stac for convenience.
type Link = gostac.Link

// Context provides additional metadata about a list response.
type Context struct {
	Returned int `json:"returned"`
	Limit    int `json:"limit"`
	Matched  int `json:"matched"`
}

// SearchSummary is one registered search as shown by the list endpoint.
type SearchSummary struct {
	ID       string         `json:"id"`
	Search   any            `json:"search"`
	Metadata any            `json:"metadata"`
	LastUsed time.Time      `json:"lastused"`
	UseCount int64          `json:"usecount"`
	Links    []*gostac.Link `json:"links,omitempty"`
}

// SearchList represents the list searches response.
type SearchList struct {
	Searches []*SearchSummary `json:"searches"`
	Links    []*gostac.Link   `json:"links"`
	Context  Context          `json:"context"`
}

// NewSearchList creates a new SearchList.
func NewSearchList(searches []*SearchSummary, limit, matched int) *SearchList {
	if searches == nil {
		searches = []*SearchSummary{}
	}
	return &SearchList{
		Searches: searches,
		Links:    make([]*gostac.Link, 0),
		Context: Context{
			Returned: len(searches),
			Limit:    limit,
			Matched:  matched,
		},
	}
}

// AddLink adds a link to the SearchList.
func (sl *SearchList) AddLink(rel, href, mediaType string) {
	sl.Links = append(sl.Links, &gostac.Link{
		Rel:  rel,
		Href: href,
		Type: mediaType,
	})
}

// Conformance represents the conformance classes response.
type Conformance struct {
	ConformsTo []string `json:"conformsTo"`
}

// LandingPage represents the service landing page response.
type LandingPage struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Links       []*gostac.Link `json:"links"`
}

// NewLandingPage creates a new landing page response.
func NewLandingPage(title, description string) *LandingPage {
	return &LandingPage{
		Title:       title,
		Description: description,
		Links:       make([]*gostac.Link, 0),
	}
}

// AddLink adds a link to the landing page.
func (lp *LandingPage) AddLink(rel, href, mediaType, title string) {
	lp.Links = append(lp.Links, &gostac.Link{
		Rel:   rel,
		Href:  href,
		Type:  mediaType,
		Title: title,
	})
}

// Conformance class URIs
const (
	ConformanceCommonCore   = "http://www.opengis.net/spec/ogcapi-common-1/1.0/conf/core"
	ConformanceCommonJSON   = "http://www.opengis.net/spec/ogcapi-common-1/1.0/conf/json"
	ConformanceCommonHTML   = "http://www.opengis.net/spec/ogcapi-common-1/1.0/conf/html"
	ConformanceTilesCore    = "http://www.opengis.net/spec/ogcapi-tiles-1/1.0/conf/core"
	ConformanceTileSet      = "http://www.opengis.net/spec/ogcapi-tiles-1/1.0/conf/tileset"
	ConformanceTMSCore      = "http://www.opengis.net/spec/tms/2.0/conf/tilematrixset"
	ConformanceTMSJSON      = "http://www.opengis.net/spec/tms/2.0/conf/json-tilematrixset"
	ConformanceFilterCQL2   = "http://www.opengis.net/spec/cql2/1.0/conf/cql2-json"
	ConformanceBasicSpatial = "http://www.opengis.net/spec/cql2/1.0/conf/basic-spatial-operators"
)

// DefaultConformance returns the conformance classes the service declares.
func DefaultConformance() []string {
	return []string{
		ConformanceCommonCore,
		ConformanceCommonJSON,
		ConformanceCommonHTML,
		ConformanceTilesCore,
		ConformanceTileSet,
		ConformanceTMSCore,
		ConformanceTMSJSON,
		ConformanceFilterCQL2,
		ConformanceBasicSpatial,
	}
}
