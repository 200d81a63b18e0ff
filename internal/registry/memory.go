package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/internal/stac"
)

// MemoryStore is a Store held in process memory. It is used by the memory
// backend and by tests; entries are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	seq     int64
	opts    options
}

type memEntry struct {
	entry mosaic.Entry
	seq   int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memEntry),
		opts:    buildOptions(opts),
	}
}

// Register implements Store.
func (s *MemoryStore) Register(ctx context.Context, def mosaic.SearchDefinition, md mosaic.Metadata) (*mosaic.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &mosaic.BackendUnavailableError{Op: "register", Err: err}
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	id, err := Fingerprint(def)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.opts.now().UTC()
	if e, ok := s.entries[id]; ok {
		e.entry.LastUsed = now
		e.entry.UseCount++
		if s.opts.policy == LastWriteWins {
			e.entry.Metadata = md
		}
		out := e.entry
		return &out, nil
	}

	s.seq++
	e := &memEntry{
		entry: mosaic.Entry{
			ID:         id,
			Definition: def,
			Metadata:   md,
			CreatedAt:  now,
			LastUsed:   now,
			UseCount:   1,
		},
		seq: s.seq,
	}
	s.entries[id] = e
	s.opts.logger.Debug("registered search", "search_id", id)

	out := e.entry
	return &out, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id string) (*mosaic.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &mosaic.BackendUnavailableError{Op: "get", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, &mosaic.NotFoundError{ID: id}
	}
	e.entry.LastUsed = s.opts.now().UTC()
	e.entry.UseCount++
	out := e.entry
	return &out, nil
}

// Peek implements Store.
func (s *MemoryStore) Peek(ctx context.Context, id string) (*mosaic.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, &mosaic.BackendUnavailableError{Op: "peek", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, &mosaic.NotFoundError{ID: id}
	}
	out := e.entry
	return &out, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &mosaic.BackendUnavailableError{Op: "list", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]*memEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if matchesFilters(e.entry.Metadata, params.Filters) {
			matched = append(matched, e)
		}
	}

	key, desc := sortKey(params.Sortby)
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if key != "" {
			if c := compareBy(key, a.entry, b.entry); c != 0 {
				if desc {
					return c > 0
				}
				return c < 0
			}
		}
		return a.seq < b.seq
	})

	page := matched
	if params.Offset > 0 {
		if params.Offset >= len(page) {
			page = nil
		} else {
			page = page[params.Offset:]
		}
	}
	if params.Limit > 0 && len(page) > params.Limit {
		page = page[:params.Limit]
	}

	out := &ListResult{Entries: make([]*mosaic.Entry, 0, len(page)), Matched: len(matched)}
	for _, e := range page {
		entry := e.entry
		out.Entries = append(out.Entries, &entry)
	}
	return out, nil
}

func matchesFilters(md mosaic.Metadata, filters []stac.MetadataFilter) bool {
	for _, f := range filters {
		v, ok := md.StringValue(f.Key)
		if !ok || v != f.Value {
			return false
		}
	}
	return true
}

// compareBy orders two entries by key the way Postgres orders jsonb values,
// with absent values sorting after every present value.
func compareBy(key string, a, b mosaic.Entry) int {
	if key == stac.SortLastUsed {
		return a.LastUsed.Compare(b.LastUsed)
	}
	av, aok := a.Metadata.Value(key)
	bv, bok := b.Metadata.Value(key)
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return 1
	case !bok:
		return -1
	}
	return compareJSON(av, bv)
}

// jsonRank follows the jsonb type ordering: null < string < number < boolean < array < object.
func jsonRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case string:
		return 1
	case json.Number:
		return 2
	case bool:
		return 3
	case []any:
		return 4
	default:
		return 5
	}
}

func compareJSON(a, b json.RawMessage) int {
	av, bv := decodeNumber(a), decodeNumber(b)
	ra, rb := jsonRank(av), jsonRank(bv)
	if ra != rb {
		return ra - rb
	}
	switch x := av.(type) {
	case string:
		return strings.Compare(x, bv.(string))
	case json.Number:
		xf, _ := x.Float64()
		yf, _ := bv.(json.Number).Float64()
		switch {
		case xf < yf:
			return -1
		case xf > yf:
			return 1
		}
		return 0
	case bool:
		y := bv.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case nil:
		return 0
	}
	return bytes.Compare(compact(a), compact(b))
}

func decodeNumber(raw json.RawMessage) any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return string(raw)
	}
	return v
}

func compact(raw json.RawMessage) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
