package links

import (
	"log/slog"
	"strings"

	gostac "github.com/planetlabs/go-stac"

	"github.com/rkm/pgstac-mosaic/internal/metrics"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
)

// Prober reports whether the deployment serves the given route template.
type Prober func(route string) bool

// Builder constructs mosaic discovery links.
type Builder struct {
	baseURL   string
	contracts []Contract
	exposed   Prober
	logger    *slog.Logger
}

// NewBuilder creates a Builder. A nil prober treats every route as exposed.
func NewBuilder(baseURL string, contracts []Contract, exposed Prober, logger *slog.Logger) *Builder {
	if exposed == nil {
		exposed = func(string) bool { return true }
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		baseURL:   strings.TrimRight(baseURL, "/"),
		contracts: contracts,
		exposed:   exposed,
		logger:    logger,
	}
}

// Href expands a route template for search id, keeping {tileMatrixSetId}.
func (b *Builder) Href(route, id string) string {
	return b.baseURL + strings.ReplaceAll(route, "{search_id}", id)
}

// Info returns the links of an entry: self, one base link per exposed
// endpoint, then one link per (layer, endpoint) pair whose parameters the
// endpoint accepts. A layer rejected by any endpoint yields one warning.
func (b *Builder) Info(entry *mosaic.Entry) ([]*gostac.Link, []mosaic.LinkWarning) {
	links := []*gostac.Link{{
		Rel:   "self",
		Title: "Mosaic metadata",
		Href:  b.Href(RouteInfo, entry.ID),
		Type:  "application/json",
	}}

	exposed := b.exposedContracts()
	for _, c := range exposed {
		links = append(links, b.templated(c, entry.ID, c.Title+" (Template URL)", ""))
	}

	var warnings []mosaic.LinkWarning
	for _, layer := range entry.Metadata.Defaults {
		warned := false
		for _, c := range exposed {
			unknown, missing := c.Check(layer.Params)
			if len(unknown) > 0 || len(missing) > 0 {
				if !warned {
					warnings = append(warnings, mosaic.LinkWarning{
						Layer:    layer.Name,
						Endpoint: c.Kind,
						Unknown:  unknown,
						Missing:  missing,
					})
					warned = true
				}
				continue
			}
			title := c.Title + " for `" + layer.Name + "` layer (Template URL)"
			links = append(links, b.templated(c, entry.ID, title, layer.Params.Encode()))
		}
	}

	for _, w := range warnings {
		metrics.LinkWarnings.Inc()
		b.logger.Warn(w.Error(),
			"search_id", entry.ID,
			"layer", w.Layer,
			"endpoint", w.Endpoint,
			"unknown", w.Unknown,
			"missing", w.Missing,
		)
	}
	return links, warnings
}

// Register returns the links of a registration response: the metadata link
// then one templated link per exposed endpoint.
func (b *Builder) Register(id string) []*gostac.Link {
	links := []*gostac.Link{{
		Rel:   "metadata",
		Title: "Mosaic metadata",
		Href:  b.Href(RouteInfo, id),
		Type:  "application/json",
	}}
	for _, c := range b.exposedContracts() {
		links = append(links, b.templated(c, id, c.Title+" (Template URL)", ""))
	}
	return links
}

func (b *Builder) exposedContracts() []Contract {
	out := make([]Contract, 0, len(b.contracts))
	for _, c := range b.contracts {
		if b.exposed(c.Route) {
			out = append(out, c)
		}
	}
	return out
}

func (b *Builder) templated(c Contract, id, title, query string) *gostac.Link {
	href := b.Href(c.Route, id)
	if query != "" {
		href += "?" + query
	}
	return &gostac.Link{
		Rel:              c.Kind,
		Title:            title,
		Href:             href,
		Type:             c.MediaType,
		AdditionalFields: map[string]any{"templated": true},
	}
}
