package mosaic

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_RoundTripKeepsLayerOrder(t *testing.T) {
	in := `{"type":"mosaic","name":"S2","minzoom":4,"defaults":{"true_color":{"assets":["B04","B03","B02"],"rescale":"0,3000"},"ndvi":{"expression":"(B08-B04)/(B08+B04)","colormap_name":"viridis"}},"owner":"ops","num":2}`

	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(in), &md))

	assert.Equal(t, "mosaic", md.Type)
	assert.Equal(t, "S2", md.Name)
	require.NotNil(t, md.MinZoom)
	assert.Equal(t, 4, *md.MinZoom)
	assert.Nil(t, md.MaxZoom)

	require.Len(t, md.Defaults, 2)
	assert.Equal(t, "true_color", md.Defaults[0].Name)
	assert.Equal(t, "ndvi", md.Defaults[1].Name)
	assert.Equal(t, []string{"B04", "B03", "B02"}, md.Defaults[0].Params["assets"])

	out, err := json.Marshal(md)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
	assert.Regexp(t, `^\{"type":"mosaic","name":"S2","minzoom":4,"defaults":\{"true_color":`, string(out))
}

func TestMetadata_TypeDefaultsToMosaic(t *testing.T) {
	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"name":"x"}`), &md))
	assert.Equal(t, MetadataType, md.Type)

	out, err := json.Marshal(Metadata{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mosaic"}`, string(out))
}

func TestMetadata_StringValue(t *testing.T) {
	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"num":2,"flag":true,"owner":"ops","nested":{"a": 1},"nothing":null}`), &md))

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"num", "2", true},
		{"flag", "true", true},
		{"owner", "ops", true},
		{"nested", `{"a":1}`, true},
		{"type", "mosaic", true},
		{"nothing", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := md.StringValue(tt.key)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetadata_Validate(t *testing.T) {
	zoom := func(z int) *int { return &z }

	tests := []struct {
		name    string
		md      Metadata
		wantErr bool
	}{
		{"default", DefaultMetadata(), false},
		{"zoom range", Metadata{MinZoom: zoom(2), MaxZoom: zoom(18)}, false},
		{"wrong type", Metadata{Type: "collection"}, true},
		{"zoom too high", Metadata{MaxZoom: zoom(31)}, true},
		{"min above max", Metadata{MinZoom: zoom(10), MaxZoom: zoom(5)}, true},
		{"short bounds", Metadata{Bounds: []float64{0, 0, 1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.md.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMetadata_LayerParams(t *testing.T) {
	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"defaults":{"rgb":{"assets":["red","green"],"rescale":[[0,255]],"nodata":0,"unscale":false,"skip":null}}}`), &md))

	layer, ok := md.Layer("rgb")
	require.True(t, ok)
	assert.Equal(t, []string{"red", "green"}, layer.Params["assets"])
	assert.Equal(t, []string{"[0,255]"}, layer.Params["rescale"])
	assert.Equal(t, "0", layer.Params.Get("nodata"))
	assert.Equal(t, "false", layer.Params.Get("unscale"))
	_, present := layer.Params["skip"]
	assert.False(t, present)

	_, ok = md.Layer("missing")
	assert.False(t, ok)
}

func TestMetadata_RejectsNonObject(t *testing.T) {
	var md Metadata
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &md))
	assert.Error(t, json.Unmarshal([]byte(`{"defaults":{"bad":"string"}}`), &md))
}

func TestErrors(t *testing.T) {
	nf := &NotFoundError{ID: "0123456789abcdef0123456789abcdef"}
	assert.Equal(t, "SearchId `0123456789abcdef0123456789abcdef` not found", nf.Error())
	assert.True(t, IsNotFound(nf))
	assert.False(t, IsValidation(nf))

	cnf := &NotFoundError{ID: "landsat", Kind: KindCollection}
	assert.Equal(t, "CollectionId `landsat` not found", cnf.Error())

	w := LinkWarning{Layer: "ndvi", Endpoint: "tilejson"}
	assert.Equal(t, "Cannot construct URL for layer `ndvi`", w.Error())
}
