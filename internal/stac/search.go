package stac

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// SortbyItem represents a single sort criterion
type SortbyItem struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// MetadataFilter is an equality constraint on a metadata key.
type MetadataFilter struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ListRequest represents a request to list registered searches.
type ListRequest struct {
	Limit   int              `json:"limit,omitempty"`
	Offset  int              `json:"offset,omitempty"`
	Sortby  *SortbyItem      `json:"-"`
	Filters []MetadataFilter `json:"-"`
}

// reservedListParams are query parameters that are not metadata filters.
var reservedListParams = map[string]bool{
	"limit":  true,
	"offset": true,
	"sortby": true,
	"f":      true,
}

// ParseListRequest parses a list request from GET query parameters.
// Every parameter other than limit, offset and sortby is a metadata equality filter.
func ParseListRequest(r *http.Request) (*ListRequest, error) {
	query := r.URL.Query()
	req := &ListRequest{}

	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, fmt.Errorf("invalid limit parameter: %w", err)
		}
		if limit < 1 {
			return nil, fmt.Errorf("limit must be positive, got %d", limit)
		}
		req.Limit = limit
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, fmt.Errorf("invalid offset parameter: %w", err)
		}
		if offset < 0 {
			return nil, fmt.Errorf("offset must be non-negative, got %d", offset)
		}
		req.Offset = offset
	}

	if sortbyStr := query.Get("sortby"); sortbyStr != "" {
		item, err := ParseSortby(sortbyStr)
		if err != nil {
			return nil, fmt.Errorf("invalid sortby parameter: %w", err)
		}
		req.Sortby = item
	}

	keys := make([]string, 0, len(query))
	for k := range query {
		if !reservedListParams[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range query[k] {
			req.Filters = append(req.Filters, MetadataFilter{Key: k, Value: v})
		}
	}

	return req, nil
}

// listRequestBody is the POST form of a list request.
type listRequestBody struct {
	Limit  int               `json:"limit,omitempty"`
	Offset int               `json:"offset,omitempty"`
	Sortby string            `json:"sortby,omitempty"`
	Filter map[string]string `json:"filter,omitempty"`
}

// ParseListRequestBody parses a list request from a POST JSON body.
func ParseListRequestBody(body io.Reader) (*ListRequest, error) {
	var b listRequestBody
	if err := json.NewDecoder(body).Decode(&b); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse list request body: %w", err)
	}
	if b.Limit < 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", b.Limit)
	}
	if b.Offset < 0 {
		return nil, fmt.Errorf("offset must be non-negative, got %d", b.Offset)
	}

	req := &ListRequest{Limit: b.Limit, Offset: b.Offset}
	if b.Sortby != "" {
		item, err := ParseSortby(b.Sortby)
		if err != nil {
			return nil, fmt.Errorf("invalid sortby: %w", err)
		}
		req.Sortby = item
	}

	keys := make([]string, 0, len(b.Filter))
	for k := range b.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		req.Filters = append(req.Filters, MetadataFilter{Key: k, Value: b.Filter[k]})
	}
	return req, nil
}

// ParseSortby parses a single sort key.
// Format: sortby=+num or sortby=-num (+ is asc, - is desc, no prefix is asc)
func ParseSortby(sortbyStr string) (*SortbyItem, error) {
	field := strings.TrimSpace(sortbyStr)
	if strings.Contains(field, ",") {
		return nil, fmt.Errorf("only one sort key is supported, got %q", sortbyStr)
	}

	direction := SortAsc
	switch {
	case strings.HasPrefix(field, "+"):
		field = field[1:]
	case strings.HasPrefix(field, "-"):
		direction = SortDesc
		field = field[1:]
	}

	if field == "" {
		return nil, fmt.Errorf("empty field name in sortby")
	}
	return &SortbyItem{Field: field, Direction: direction}, nil
}

// String renders the sort key in its prefixed form.
func (s SortbyItem) String() string {
	if s.Direction == SortDesc {
		return "-" + s.Field
	}
	return "+" + s.Field
}

// ToQueryParams converts a ListRequest to URL query parameters.
// This is used to build pagination links.
func (req *ListRequest) ToQueryParams() url.Values {
	params := url.Values{}
	for _, f := range req.Filters {
		params.Add(f.Key, f.Value)
	}
	if req.Sortby != nil {
		params.Set("sortby", req.Sortby.String())
	}
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	if req.Offset > 0 {
		params.Set("offset", strconv.Itoa(req.Offset))
	}
	return params
}
