// Package mosaic defines the core value types shared by the search registry,
// the spatial asset resolver and the link constructor.
package mosaic

import (
	"time"
)

// FilterLangCQL2JSON is the only filter dialect stored in the registry.
const FilterLangCQL2JSON = "cql2-json"

// SearchDefinition is the canonical, hashable description of a mosaic.
// Absent fields are nil; the zero value is the unconstrained search.
type SearchDefinition struct {
	Collections []string       `json:"collections,omitempty"`
	IDs         []string       `json:"ids,omitempty"`
	BBox        []float64      `json:"bbox,omitempty"`
	Filter      map[string]any `json:"filter,omitempty"`
	FilterLang  string         `json:"filter-lang"`
}

// IsUnconstrained reports whether the definition matches every item.
func (d SearchDefinition) IsUnconstrained() bool {
	return len(d.Collections) == 0 && len(d.IDs) == 0 && len(d.BBox) == 0 && len(d.Filter) == 0
}

// Entry is a persisted registry record.
type Entry struct {
	ID         string           `json:"id"`
	Definition SearchDefinition `json:"search"`
	Metadata   Metadata         `json:"metadata"`
	CreatedAt  time.Time        `json:"created_at"`
	LastUsed   time.Time        `json:"lastused"`
	UseCount   int64            `json:"usecount"`
}

// AssetMatch is one item returned by a spatial asset query.
type AssetMatch struct {
	ID         string    `json:"id"`
	BBox       []float64 `json:"bbox"`
	Assets     []string  `json:"assets"`
	Collection string    `json:"collection"`
}
