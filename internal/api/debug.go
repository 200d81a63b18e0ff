package api

import (
	"net/http"
)

// Collections lists the collections known to the asset backend.
// GET /collections (debug)
func (h *Handlers) Collections(w http.ResponseWriter, r *http.Request) {
	ids, err := h.backend.Collections(r.Context())
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]any{"collections": ids})
}

type backendInfo struct {
	Backend  string `json:"backend"`
	Version  string `json:"pgstac_version,omitempty"`
	ReadOnly bool   `json:"pgstac_readonly"`
}

// BackendInfo reports the asset backend version.
// GET /pgstac (debug)
func (h *Handlers) BackendInfo(w http.ResponseWriter, r *http.Request) {
	health, err := h.backend.Health(r.Context())
	if err != nil {
		h.writeMosaicError(w, r, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, backendInfo{
		Backend:  h.backend.Name(),
		Version:  health.Versions["pgstac"],
		ReadOnly: health.ReadOnly,
	})
}
