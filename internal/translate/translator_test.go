package translate

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rkm/pgstac-mosaic/internal/mosaic"
	"github.com/rkm/pgstac-mosaic/pkg/geojson"
)

func mustFilter(t *testing.T, s string) map[string]any {
	t.Helper()
	var f map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &f))
	return f
}

func TestNormalize_Shorthand(t *testing.T) {
	n := NewNormalizer(nil)

	def, err := n.Normalize(Query{
		Collections: []string{"landsat", " sentinel-2 ", "landsat"},
		IDs:         []string{"b", "a"},
		BBox:        []float64{-10, -10, 10, 10},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"landsat", "sentinel-2"}, def.Collections)
	assert.Equal(t, []string{"a", "b"}, def.IDs)
	assert.Equal(t, []float64{-10, -10, 10, 10}, def.BBox)
	assert.Nil(t, def.Filter)
	assert.Equal(t, mosaic.FilterLangCQL2JSON, def.FilterLang)
}

func TestNormalize_FilterLangDefaultsToCQL2JSON(t *testing.T) {
	n := NewNormalizer(nil)

	def, err := n.Normalize(Query{Collections: []string{"c"}})
	require.NoError(t, err)
	assert.Equal(t, "cql2-json", def.FilterLang)

	_, err = n.Normalize(Query{Collections: []string{"c"}, FilterLang: "cql2-text"})
	require.Error(t, err)
	assert.True(t, mosaic.IsValidation(err))
	assert.True(t, errors.Is(err, ErrUnsupportedFilterLang))
}

func TestNormalize_KeyOrderIndependent(t *testing.T) {
	n := NewNormalizer(nil)

	a, err := n.Normalize(Query{
		Collections: []string{"b", "a"},
		Filter: mustFilter(t, `{"op":"and","args":[
			{"op":"=","args":[{"property":"eo:cloud_cover"},10]},
			{"op":"<","args":[{"property":"gsd"},30]}]}`),
	})
	require.NoError(t, err)

	b, err := n.Normalize(Query{
		Collections: []string{"a", "b"},
		Filter: mustFilter(t, `{"args":[
			{"args":[{"property":"gsd"},30],"op":"<"},
			{"args":[{"property":"eo:cloud_cover"},10],"op":"="}],"op":"AND"}`),
	})
	require.NoError(t, err)

	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	assert.JSONEq(t, string(aj), string(bj))
	assert.Equal(t, string(aj), string(bj))
}

func TestNormalize_DatetimeMergedWithFilter(t *testing.T) {
	n := NewNormalizer(nil)

	def, err := n.Normalize(Query{
		Collections: []string{"c"},
		Datetime:    "2023-01-01T00:00:00Z/..",
		Filter:      mustFilter(t, `{"op":"=","args":[{"property":"platform"},"landsat-8"]}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "and", def.Filter["op"])
	args := def.Filter["args"].([]any)
	require.Len(t, args, 2)
	assert.True(t, ConstrainsProperty(def.Filter, "datetime"))
	assert.True(t, ConstrainsProperty(def.Filter, "platform"))
}

func TestNormalize_IntersectsBecomesSpatialTerm(t *testing.T) {
	n := NewNormalizer(nil)

	def, err := n.Normalize(Query{
		Intersects: &geojson.Geometry{Type: "Point", Coordinates: json.RawMessage(`[1,2]`)},
	})
	require.NoError(t, err)
	assert.Equal(t, "s_intersects", def.Filter["op"])
	assert.True(t, ConstrainsProperty(def.Filter, "geometry"))

	_, err = n.Normalize(Query{
		Intersects: &geojson.Geometry{Type: "Polygon", Coordinates: json.RawMessage(`"nope"`)},
	})
	assert.True(t, errors.Is(err, ErrInvalidGeometry))
}

func TestNormalize_Errors(t *testing.T) {
	n := NewNormalizer(nil)

	tests := []struct {
		name    string
		query   Query
		wantErr error
	}{
		{
			name:    "bbox min greater than max",
			query:   Query{BBox: []float64{10, 0, 0, 10}},
			wantErr: ErrInvalidBBox,
		},
		{
			name:    "non-finite bbox",
			query:   Query{BBox: []float64{0, 0, math.Inf(1), 10}},
			wantErr: ErrInvalidBBox,
		},
		{
			name:    "unsupported operator",
			query:   Query{Filter: map[string]any{"op": "st_buffer", "args": []any{}}},
			wantErr: ErrUnsupportedOperator,
		},
		{
			name:    "bad datetime",
			query:   Query{Collections: []string{"c"}, Datetime: "yesterday"},
			wantErr: ErrInvalidDateTime,
		},
		{
			name:    "empty search without all",
			query:   Query{},
			wantErr: ErrUnconstrained,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(tt.query)
			require.Error(t, err)
			assert.True(t, mosaic.IsValidation(err), "expected ValidationError, got %T", err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNormalize_EmptyCollectionRejected(t *testing.T) {
	_, err := NewNormalizer(nil).Normalize(Query{Collections: []string{"a", " "}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collection at index 1")
}

func TestNormalize_ExplicitUnconstrained(t *testing.T) {
	def, err := NewNormalizer(nil).Normalize(Query{All: true})
	require.NoError(t, err)
	assert.True(t, def.IsUnconstrained())
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	filter := mustFilter(t, `{"op":"OR","args":[{"op":"=","args":[{"property":"b"},1]},{"op":"=","args":[{"property":"a"},1]}]}`)
	before, _ := json.Marshal(filter)

	_, err := NewNormalizer(nil).Normalize(Query{Filter: filter})
	require.NoError(t, err)

	after, _ := json.Marshal(filter)
	assert.Equal(t, string(before), string(after))
}

func TestNormalize_ShorthandAndFilterOnSameProperty(t *testing.T) {
	n := NewNormalizer(nil)

	def, err := n.Normalize(Query{
		Collections: []string{"landsat", "sentinel-2"},
		IDs:         []string{"a"},
		Filter: mustFilter(t, `{"op":"and","args":[
			{"op":"=","args":[{"property":"collection"},"landsat"]},
			{"op":"in","args":[{"property":"id"},["a","b"]]}
		]}`),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"landsat", "sentinel-2"}, def.Collections)
	assert.Equal(t, []string{"a"}, def.IDs)
	assert.True(t, ConstrainsProperty(def.Filter, "collection"))
	assert.True(t, ConstrainsProperty(def.Filter, "id"))
}

func TestNormalize_RestrictedOperators(t *testing.T) {
	crosses := mustFilter(t, `{"op":"s_crosses","args":[{"property":"geometry"},{"bbox":[0,0,1,1]}]}`)
	nested := mustFilter(t, `{"op":"and","args":[
		{"op":"=","args":[{"property":"platform"},"x"]},
		{"op":"not","args":[{"op":"S_TOUCHES","args":[{"property":"geometry"},{"bbox":[0,0,1,1]}]}]}
	]}`)
	allowed := []string{"and", "not", "=", "s_intersects"}

	n := NewNormalizer(nil, WithOperators(allowed...))
	for _, filter := range []map[string]any{crosses, nested} {
		_, err := n.Normalize(Query{Filter: filter})
		require.Error(t, err)
		assert.True(t, mosaic.IsValidation(err))
		assert.ErrorIs(t, err, ErrUnsupportedOperator)
	}

	_, err := n.Normalize(Query{Filter: mustFilter(t, `{"op":"s_intersects","args":[{"property":"geometry"},{"bbox":[0,0,1,1]}]}`)})
	assert.NoError(t, err)

	_, err = NewNormalizer(nil).Normalize(Query{Filter: crosses})
	assert.NoError(t, err, "the full operator set is the default")

	_, err = NewNormalizer(nil, WithOperators()).Normalize(Query{Filter: crosses})
	assert.NoError(t, err, "an empty list keeps the full set")
}
