package mosaic

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or contradictory input. Never retried.
type ValidationError struct {
	Msg string
	Err error
}

func (e *ValidationError) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps err as a ValidationError.
func NewValidationError(err error) *ValidationError {
	return &ValidationError{Err: err}
}

// NotFoundError reports an unknown registry id or collection. The id is
// echoed verbatim.
type NotFoundError struct {
	ID string
	// Kind names what was looked up. Empty means a search id.
	Kind string
}

// KindCollection marks a NotFoundError for an unknown collection.
const KindCollection = "CollectionId"

func (e *NotFoundError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "SearchId"
	}
	return fmt.Sprintf("%s `%s` not found", kind, e.ID)
}

// BackendUnavailableError reports an unreachable or timed out backend.
type BackendUnavailableError struct {
	Op  string
	Err error
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *BackendUnavailableError) Unwrap() error { return e.Err }

// LinkWarning is a non-fatal failure to build a discovery link for a layer.
type LinkWarning struct {
	Layer    string
	Endpoint string
	// Unknown lists layer parameters the endpoint does not accept.
	Unknown []string
	// Missing lists parameters the endpoint requires but the layer lacks.
	Missing []string
}

func (w LinkWarning) Error() string {
	return fmt.Sprintf("Cannot construct URL for layer `%s`", w.Layer)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsBackendUnavailable reports whether err is a BackendUnavailableError.
func IsBackendUnavailable(err error) bool {
	var bu *BackendUnavailableError
	return errors.As(err, &bu)
}
