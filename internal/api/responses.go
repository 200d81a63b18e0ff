// Package api provides HTTP handlers and routing for the pgstac mosaic service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rkm/pgstac-mosaic/internal/backend"
	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/render"
)

// STACError represents a STAC-compliant error response.
type STACError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"request_id,omitempty"`
}

// DetailError is the error body of the mosaic endpoints.
type DetailError struct {
	Detail string `json:"detail"`
}

// Standard STAC error codes.
const (
	ErrCodeNotFound    = "NotFound"
	ErrCodeServerError = "ServerError"
)

// WriteJSON writes a JSON response with the given status code and value.
// If encoding fails, it logs the error and returns it.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("error", err.Error()),
		)
		return err
	}

	return nil
}

// WriteError writes a STAC-compliant error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeSTACError(w, status, STACError{Code: code, Description: message})
}

func writeSTACError(w http.ResponseWriter, status int, errResp STACError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		slog.Error("failed to encode error response",
			slog.String("error", err.Error()),
		)
	}
}

// WriteDetail writes a {detail} error response.
func WriteDetail(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, DetailError{Detail: message})
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInternalErrorWithRequestID writes a 500 response carrying the request id.
func WriteInternalErrorWithRequestID(w http.ResponseWriter, message, requestID string) {
	writeSTACError(w, http.StatusInternalServerError, STACError{
		Code:        ErrCodeServerError,
		Description: message,
		RequestID:   requestID,
	})
}

// writeMosaicError maps the mosaic error taxonomy onto {detail} responses.
func (h *Handlers) writeMosaicError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case mosaic.IsValidation(err), errors.Is(err, backend.ErrUnsupportedExpression):
		WriteDetail(w, http.StatusBadRequest, err.Error())
	case mosaic.IsNotFound(err):
		WriteDetail(w, http.StatusNotFound, err.Error())
	case mosaic.IsBackendUnavailable(err):
		h.logger.Warn("backend unavailable",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteDetail(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, render.ErrNotImplemented):
		WriteDetail(w, http.StatusNotImplemented, err.Error())
	default:
		h.logger.Error("request failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteDetail(w, http.StatusInternalServerError, "internal server error")
	}
}
