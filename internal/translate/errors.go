package translate

import "errors"

var (
	// ErrInvalidBBox is returned when a bbox is malformed or out of range.
	ErrInvalidBBox = errors.New("invalid bbox")

	// ErrInvalidGeometry is returned when an intersects geometry cannot be decoded.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrInvalidDateTime is returned when datetime parsing fails.
	ErrInvalidDateTime = errors.New("invalid datetime format")

	// ErrUnsupportedFilter is returned when a filter expression is not a valid CQL2-JSON tree.
	ErrUnsupportedFilter = errors.New("unsupported filter expression")

	// ErrUnsupportedOperator is returned when a filter uses an operator outside the CQL2 set.
	ErrUnsupportedOperator = errors.New("unsupported filter operator")

	// ErrUnsupportedFilterLang is returned for any dialect other than cql2-json.
	ErrUnsupportedFilterLang = errors.New("unsupported filter-lang")

	// ErrUnconstrained is returned for an empty search that was not marked as intentional.
	ErrUnconstrained = errors.New("search has no constraints")
)
