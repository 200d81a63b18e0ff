package mosaic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// MetadataType is the reserved value of the "type" metadata key.
const MetadataType = "mosaic"

// Reserved metadata keys.
const (
	KeyType     = "type"
	KeyName     = "name"
	KeyMinZoom  = "minzoom"
	KeyMaxZoom  = "maxzoom"
	KeyBounds   = "bounds"
	KeyDefaults = "defaults"
)

// Layer is one named set of rendering parameters from metadata.defaults.
type Layer struct {
	Name   string
	Params url.Values
	raw    json.RawMessage
}

// Metadata is the typed envelope around a registry entry's open metadata.
// Reserved keys are typed fields; everything else lives in Extra.
type Metadata struct {
	Type     string
	Name     string
	MinZoom  *int
	MaxZoom  *int
	Bounds   []float64
	Defaults []Layer
	Extra    map[string]json.RawMessage
}

// DefaultMetadata returns the metadata stored when a caller supplies none.
func DefaultMetadata() Metadata {
	return Metadata{Type: MetadataType}
}

// Validate checks the reserved fields.
func (m Metadata) Validate() error {
	if m.Type != "" && m.Type != MetadataType {
		return &ValidationError{Msg: fmt.Sprintf("metadata type must be %q, got %q", MetadataType, m.Type)}
	}
	for _, z := range []*int{m.MinZoom, m.MaxZoom} {
		if z != nil && (*z < 0 || *z > 30) {
			return &ValidationError{Msg: fmt.Sprintf("zoom level must be between 0 and 30, got %d", *z)}
		}
	}
	if m.MinZoom != nil && m.MaxZoom != nil && *m.MinZoom > *m.MaxZoom {
		return &ValidationError{Msg: fmt.Sprintf("minzoom (%d) must be <= maxzoom (%d)", *m.MinZoom, *m.MaxZoom)}
	}
	if m.Bounds != nil && len(m.Bounds) != 4 {
		return &ValidationError{Msg: fmt.Sprintf("metadata bounds must have 4 values, got %d", len(m.Bounds))}
	}
	return nil
}

// Value returns the JSON encoding of the metadata value stored under key.
func (m Metadata) Value(key string) (json.RawMessage, bool) {
	var v any
	switch key {
	case KeyType:
		v = m.typ()
	case KeyName:
		if m.Name == "" {
			return nil, false
		}
		v = m.Name
	case KeyMinZoom:
		if m.MinZoom == nil {
			return nil, false
		}
		v = *m.MinZoom
	case KeyMaxZoom:
		if m.MaxZoom == nil {
			return nil, false
		}
		v = *m.MaxZoom
	case KeyBounds:
		if m.Bounds == nil {
			return nil, false
		}
		v = m.Bounds
	case KeyDefaults:
		if len(m.Defaults) == 0 {
			return nil, false
		}
		b, err := marshalLayers(m.Defaults)
		if err != nil {
			return nil, false
		}
		return b, true
	default:
		raw, ok := m.Extra[key]
		return raw, ok
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	return b, true
}

// StringValue returns the metadata value under key rendered as text, the way
// Postgres renders jsonb with the ->> operator.
func (m Metadata) StringValue(key string) (string, bool) {
	raw, ok := m.Value(key)
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw), true
	}
	return buf.String(), true
}

// Layer returns the named default layer.
func (m Metadata) Layer(name string) (Layer, bool) {
	for _, l := range m.Defaults {
		if l.Name == name {
			return l, true
		}
	}
	return Layer{}, false
}

func (m Metadata) typ() string {
	if m.Type == "" {
		return MetadataType
	}
	return m.Type
}

// MarshalJSON writes reserved keys first, then extra keys in sorted order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, raw []byte) {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, _ := json.Marshal(key)
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(raw)
	}

	for _, key := range []string{KeyType, KeyName, KeyMinZoom, KeyMaxZoom, KeyBounds, KeyDefaults} {
		if raw, ok := m.Value(key); ok {
			write(key, raw)
		}
	}

	keys := make([]string, 0, len(m.Extra))
	for k := range m.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k, m.Extra[k])
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON splits reserved keys into typed fields.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("metadata must be a JSON object: %w", err)
	}

	out := Metadata{}
	for key, raw := range fields {
		switch key {
		case KeyType:
			if err := json.Unmarshal(raw, &out.Type); err != nil {
				return fmt.Errorf("metadata type: %w", err)
			}
		case KeyName:
			if err := json.Unmarshal(raw, &out.Name); err != nil {
				return fmt.Errorf("metadata name: %w", err)
			}
		case KeyMinZoom:
			if err := json.Unmarshal(raw, &out.MinZoom); err != nil {
				return fmt.Errorf("metadata minzoom: %w", err)
			}
		case KeyMaxZoom:
			if err := json.Unmarshal(raw, &out.MaxZoom); err != nil {
				return fmt.Errorf("metadata maxzoom: %w", err)
			}
		case KeyBounds:
			if err := json.Unmarshal(raw, &out.Bounds); err != nil {
				return fmt.Errorf("metadata bounds: %w", err)
			}
		case KeyDefaults:
			layers, err := unmarshalLayers(raw)
			if err != nil {
				return fmt.Errorf("metadata defaults: %w", err)
			}
			out.Defaults = layers
		default:
			if out.Extra == nil {
				out.Extra = make(map[string]json.RawMessage)
			}
			out.Extra[key] = raw
		}
	}
	if out.Type == "" {
		out.Type = MetadataType
	}

	*m = out
	return nil
}

// unmarshalLayers decodes the defaults object keeping layer order.
func unmarshalLayers(raw json.RawMessage) ([]Layer, error) {
	if string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("must be an object")
	}

	var layers []Layer
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)

		var body json.RawMessage
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("layer %q: %w", name, err)
		}
		params, err := layerParams(body)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", name, err)
		}
		layers = append(layers, Layer{Name: name, Params: params, raw: body})
	}
	return layers, nil
}

func marshalLayers(layers []Layer) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, l := range layers {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(l.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		body := l.raw
		if body == nil {
			body, err = json.Marshal(l.Params)
			if err != nil {
				return nil, err
			}
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// layerParams flattens a layer's parameter object into query values.
// Lists become repeated values; nested objects are sent as JSON text.
func layerParams(body json.RawMessage) (url.Values, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("must be an object: %w", err)
	}
	values := url.Values{}
	for k, v := range obj {
		switch tv := v.(type) {
		case nil:
			continue
		case []any:
			for _, item := range tv {
				s, err := paramString(item)
				if err != nil {
					return nil, err
				}
				values.Add(k, s)
			}
		default:
			s, err := paramString(tv)
			if err != nil {
				return nil, err
			}
			values.Add(k, s)
		}
	}
	return values, nil
}

func paramString(v any) (string, error) {
	switch tv := v.(type) {
	case string:
		return tv, nil
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(tv), nil
	default:
		b, err := json.Marshal(tv)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
