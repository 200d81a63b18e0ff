package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/planetlabs/go-stac"

	"github.com/rkm/pgstac-mosaic/internal/backend"
	"github.com/rkm/pgstac-mosaic/internal/config"
	"github.com/rkm/pgstac-mosaic/internal/links"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/registry"
	"github.com/rkm/pgstac-mosaic/internal/render"
	"github.com/rkm/pgstac-mosaic/internal/resolver"
	intstac "github.com/rkm/pgstac-mosaic/internal/stac"
	"github.com/rkm/pgstac-mosaic/internal/tms"
	"github.com/rkm/pgstac-mosaic/internal/translate"
)

// maxBodyBytes bounds request bodies (registration, features).
const maxBodyBytes = 4 << 20

// Handlers contains all HTTP handlers for the mosaic API.
type Handlers struct {
	cfg        *config.Config
	store      registry.Store
	resolver   *resolver.Resolver
	backend    backend.AssetBackend
	normalizer *translate.Normalizer
	renderer   render.Renderer
	links      *links.Builder
	logger     *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(
	cfg *config.Config,
	store registry.Store,
	assetBackend backend.AssetBackend,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		cfg:     cfg,
		store:   store,
		backend: assetBackend,
		resolver: resolver.New(store, assetBackend,
			resolver.WithLimit(cfg.Mosaic.AssetLimit),
			resolver.WithLogger(logger),
		),
		normalizer: translate.NewNormalizer(logger, translate.WithOperators(backend.Operators(assetBackend)...)),
		renderer:   render.Unavailable{},
		links:      links.NewBuilder(cfg.Mosaic.BaseURL, links.DefaultContracts(), nil, logger),
		logger:     logger,
	}
}

// WithRenderer sets the renderer used by the image and statistics endpoints.
func (h *Handlers) WithRenderer(r render.Renderer) *Handlers {
	if r != nil {
		h.renderer = r
	}
	return h
}

// withProber rebuilds the link builder so only routes the router serves are linked.
func (h *Handlers) withProber(p links.Prober) {
	h.links = links.NewBuilder(h.cfg.Mosaic.BaseURL, links.DefaultContracts(), p, h.logger)
}

// LandingPage returns the service landing page.
// GET /
func (h *Handlers) LandingPage(w http.ResponseWriter, r *http.Request) {
	baseURL := h.cfg.Mosaic.BaseURL

	landing := intstac.NewLandingPage(h.cfg.Mosaic.Title, h.cfg.Mosaic.Description)
	landing.AddLink("self", baseURL+"/", "application/json", "Landing page")
	landing.AddLink("conformance", baseURL+"/conformance", "application/json", "Conformance classes")
	landing.AddLink("data", baseURL+"/tileMatrixSets", "application/json", "Tile matrix sets")
	landing.AddLink("searches", baseURL+"/searches/list", "application/json", "List registered mosaics")
	landing.Links = append(landing.Links, &stac.Link{
		Rel:              "register",
		Href:             baseURL + "/searches/register",
		Type:             "application/json",
		Title:            "Register a mosaic search",
		AdditionalFields: map[string]any{"method": http.MethodPost},
	})
	landing.AddLink("service-health", baseURL+"/healthz", "application/json", "Service health")

	_ = WriteJSON(w, http.StatusOK, landing)
}

// Conformance returns the conformance classes supported by this API.
// GET /conformance
func (h *Handlers) Conformance(w http.ResponseWriter, r *http.Request) {
	_ = WriteJSON(w, http.StatusOK, &intstac.Conformance{ConformsTo: intstac.DefaultConformance()})
}

// Healthz reports backend connectivity.
// GET /healthz
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	health, err := h.backend.Health(r.Context())
	if health == nil {
		health = &backend.Health{}
	}
	status := http.StatusOK
	if err != nil || !health.Online {
		status = http.StatusServiceUnavailable
		h.logger.Warn("health check failed",
			slog.String("backend", h.backend.Name()),
			slog.Any("error", err),
		)
	}
	_ = WriteJSON(w, status, health)
}

type tileMatrixSetRef struct {
	ID    string       `json:"id"`
	Title string       `json:"title"`
	Links []*stac.Link `json:"links"`
}

// TileMatrixSets lists the supported tile matrix sets.
// GET /tileMatrixSets
func (h *Handlers) TileMatrixSets(w http.ResponseWriter, r *http.Request) {
	refs := make([]tileMatrixSetRef, 0)
	for _, id := range tms.IDs() {
		t, _ := tms.Get(id)
		refs = append(refs, tileMatrixSetRef{
			ID:    t.ID,
			Title: t.Title,
			Links: []*stac.Link{{
				Rel:  "http://www.opengis.net/def/rel/ogc/1.0/tiling-scheme",
				Href: h.cfg.Mosaic.BaseURL + "/tileMatrixSets/" + t.ID,
				Type: "application/json",
			}},
		})
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"tileMatrixSets": refs})
}

// TileMatrixSet returns one tile matrix set.
// GET /tileMatrixSets/{tileMatrixSetId}
func (h *Handlers) TileMatrixSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tileMatrixSetId")
	t, ok := tms.Get(id)
	if !ok {
		WriteNotFound(w, fmt.Sprintf("tile matrix set %q not found", id))
		return
	}
	_ = WriteJSON(w, http.StatusOK, t)
}

// registerRequest is the body of a registration: a search plus metadata.
type registerRequest struct {
	translate.Query
	Metadata *mosaic.Metadata `json:"metadata,omitempty"`
}

type registerResponse struct {
	ID    string       `json:"id"`
	Links []*stac.Link `json:"links"`
}

// Register normalizes and stores a search.
// POST /searches/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	def, err := h.normalizer.Normalize(req.Query)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	md := mosaic.DefaultMetadata()
	if req.Metadata != nil {
		md = *req.Metadata
	}

	entry, err := h.store.Register(r.Context(), def, md)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	h.logger.Info("registered search",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("search_id", entry.ID),
		slog.Int64("usecount", entry.UseCount),
	)

	_ = WriteJSON(w, http.StatusOK, registerResponse{
		ID:    entry.ID,
		Links: h.links.Register(entry.ID),
	})
}

// ListSearches lists registered searches.
// GET /searches/list
// POST /searches/list
func (h *Handlers) ListSearches(w http.ResponseWriter, r *http.Request) {
	var (
		req *intstac.ListRequest
		err error
	)
	if r.Method == http.MethodPost {
		req, err = intstac.ParseListRequestBody(io.LimitReader(r.Body, maxBodyBytes))
	} else {
		req, err = intstac.ParseListRequest(r)
	}
	if err != nil {
		WriteDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Limit == 0 {
		req.Limit = h.cfg.Mosaic.DefaultLimit
	}
	if req.Limit > h.cfg.Mosaic.MaxLimit {
		req.Limit = h.cfg.Mosaic.MaxLimit
	}

	result, err := h.store.List(r.Context(), registry.ListParams{
		Filters: req.Filters,
		Sortby:  req.Sortby,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	summaries := make([]*intstac.SearchSummary, 0, len(result.Entries))
	for _, e := range result.Entries {
		s := summarize(e)
		s.Links = []*stac.Link{{
			Rel:  "metadata",
			Href: h.links.Href(links.RouteInfo, e.ID),
			Type: "application/json",
		}}
		summaries = append(summaries, s)
	}

	list := intstac.NewSearchList(summaries, req.Limit, result.Matched)
	listURL := h.cfg.Mosaic.BaseURL + "/searches/list"
	list.AddLink("self", pageURL(listURL, req, req.Offset), "application/json")
	if next := req.Offset + len(summaries); len(summaries) > 0 && next < result.Matched {
		list.AddLink("next", pageURL(listURL, req, next), "application/json")
	}
	if req.Offset > 0 {
		prev := req.Offset - req.Limit
		if prev < 0 {
			prev = 0
		}
		list.AddLink("prev", pageURL(listURL, req, prev), "application/json")
	}

	_ = WriteJSON(w, http.StatusOK, list)
}

func pageURL(base string, req *intstac.ListRequest, offset int) string {
	page := *req
	page.Offset = offset
	if q := page.ToQueryParams().Encode(); q != "" {
		return base + "?" + q
	}
	return base
}

func summarize(e *mosaic.Entry) *intstac.SearchSummary {
	return &intstac.SearchSummary{
		ID:       e.ID,
		Search:   e.Definition,
		Metadata: e.Metadata,
		LastUsed: e.LastUsed,
		UseCount: e.UseCount,
	}
}

type infoResponse struct {
	Search *intstac.SearchSummary `json:"search"`
	Links  []*stac.Link           `json:"links"`
}

// Info returns a registered search and its discovery links.
// GET /searches/{search_id}/info
// GET /collections/{collection_id}/info
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	entry, err := h.entry(r)
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}

	lks, _ := h.links.Info(entry)
	_ = WriteJSON(w, http.StatusOK, infoResponse{Search: summarize(entry), Links: lks})
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// assetLimit reads the optional limit query parameter.
func (h *Handlers) assetLimit(q url.Values) (int, error) {
	s := q.Get("limit")
	if s == "" {
		return h.cfg.Mosaic.AssetLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, &mosaic.ValidationError{Msg: fmt.Sprintf("invalid limit %q: must be a positive integer", s)}
	}
	if n > h.cfg.Mosaic.MaxLimit {
		n = h.cfg.Mosaic.MaxLimit
	}
	return n, nil
}
