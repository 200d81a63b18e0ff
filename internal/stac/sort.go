package stac

// SortDirection represents the sort direction.
type SortDirection string

const (
	// SortAsc represents ascending sort order.
	SortAsc SortDirection = "asc"
	// SortDesc represents descending sort order.
	SortDesc SortDirection = "desc"
)

// SortLastUsed is the reserved sort key for the last-used timestamp.
const SortLastUsed = "lastused"
