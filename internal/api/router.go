package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rkm/pgstac-mosaic/internal/links"
	"github.com/rkm/pgstac-mosaic/internal/metrics"
	"github.com/rkm/pgstac-mosaic/internal/registry"
	"github.com/rkm/pgstac-mosaic/internal/tms"
)

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Add middleware stack
	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse) // Add X-Request-ID to response headers
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	if h.cfg.Features.EnableMetrics {
		metrics.Register()
		r.Use(metrics.Middleware())
	}
	r.Use(middleware.Compress(5)) // Gzip compression
	r.Use(ContentTypeJSON)
	r.Use(CacheControl(h.cfg.Cache.Control, h.cfg.Cache.ExcludePaths))

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))

	r.Get("/healthz", h.Healthz)
	if h.cfg.Features.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	// Service documents
	r.Get("/", h.LandingPage)
	r.Get("/conformance", h.Conformance)
	r.Get("/tileMatrixSets", h.TileMatrixSets)
	r.Get("/tileMatrixSets/{tileMatrixSetId}", h.TileMatrixSet)

	// Registry
	r.Post("/searches/register", h.Register)
	r.Get("/searches/list", h.ListSearches)
	r.Post("/searches/list", h.ListSearches)

	r.Route("/searches/{search_id}", func(r chi.Router) {
		r.Get("/info", h.Info)

		// Asset lookups
		r.Get("/point/{lonlat}/assets", h.PointAssets)
		r.Get("/tiles/{tileMatrixSetId}/{z}/{x}/{y}/assets", h.TileAssets)
		r.Get("/bbox/{bbox}/assets", h.BBoxAssets)
		r.Post("/feature/assets", h.FeatureAssets)

		// Rendering surfaces
		r.Get("/{tileMatrixSetId}/tilejson.json", h.TileJSONDocument)
		r.Get("/{tileMatrixSetId}/WMTSCapabilities.xml", h.WMTSCapabilities)
		if h.cfg.Features.EnableMapViewer {
			r.Get("/{tileMatrixSetId}/map.html", h.MapViewer)
		}

		// Rendering, delegated to the configured renderer
		r.Get("/tiles/{tileMatrixSetId}/{z}/{x}/{y}", h.Tile)
		r.Get("/bbox/{bbox}", h.BBoxImage)
		r.Post("/feature", h.FeatureImage)
		r.Post("/statistics", h.Statistics)
	})

	// Implicit per-collection searches
	r.Route("/collections/{collection_id}", func(r chi.Router) {
		r.Get("/info", h.Info)
		r.Get("/point/{lonlat}/assets", h.PointAssets)
		r.Get("/tiles/{tileMatrixSetId}/{z}/{x}/{y}/assets", h.TileAssets)
		r.Get("/bbox/{bbox}/assets", h.BBoxAssets)
		r.Post("/feature/assets", h.FeatureAssets)
		r.Post("/statistics", h.Statistics)
	})

	if h.cfg.Features.EnableDebug {
		r.Get("/collections", h.Collections)
		r.Get("/pgstac", h.BackendInfo)
	}

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	// 405 handler
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	h.withProber(routeProber(r))
	return r
}

// routeProber reports whether r serves a GET on the given route template.
func routeProber(r chi.Routes) links.Prober {
	probeID := strings.Repeat("0", registry.IDLength)
	fill := strings.NewReplacer(
		"{search_id}", probeID,
		"{tileMatrixSetId}", tms.DefaultID,
		"{z}", "0",
		"{x}", "0",
		"{y}", "0",
	)
	return func(route string) bool {
		return r.Match(chi.NewRouteContext(), http.MethodGet, fill.Replace(route))
	}
}
