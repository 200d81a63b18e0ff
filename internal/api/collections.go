package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/translate"
)

// entry returns the registry entry behind the request path and touches its
// usage once. Collection routes register the implicit search over the
// collection first.
func (h *Handlers) entry(r *http.Request) (*mosaic.Entry, error) {
	if cid := chi.URLParam(r, "collection_id"); cid != "" {
		return h.collectionEntry(r.Context(), cid)
	}
	return h.store.Get(r.Context(), chi.URLParam(r, "search_id"))
}

// collectionEntry registers {"collections": [cid]}. Registration is
// idempotent, so repeated calls land on the same entry.
func (h *Handlers) collectionEntry(ctx context.Context, cid string) (*mosaic.Entry, error) {
	known, err := h.backend.Collections(ctx)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(known, cid) {
		return nil, &mosaic.NotFoundError{ID: cid, Kind: mosaic.KindCollection}
	}

	def, err := h.normalizer.Normalize(translate.Query{Collections: []string{cid}})
	if err != nil {
		return nil, err
	}
	md := mosaic.DefaultMetadata()
	md.Name = fmt.Sprintf("Mosaic for '%s' Collection", cid)

	entry, err := h.store.Register(ctx, def, md)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("collection search",
		slog.String("collection", cid),
		slog.String("search_id", entry.ID),
	)
	return entry, nil
}
