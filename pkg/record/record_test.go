package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jittakal/kafeventavro/pkg/schema"
)

var testSchema = schema.MustParse([]byte(`{
  "type": "record",
  "name": "Reading",
  "fields": [
    {"name": "id", "type": "long"},
    {"name": "count", "type": ["null", "int"]},
    {"name": "ratio", "type": "float"},
    {"name": "value", "type": "double"},
    {"name": "label", "type": "string"},
    {"name": "ok", "type": "boolean"},
    {"name": "meta", "type": {"type": "record", "name": "Meta", "fields": [
      {"name": "source", "type": ["null", "string"]}
    ]}}
  ]
}`))

func metaSchema(t *testing.T) *schema.Schema {
	t.Helper()
	f, ok := testSchema.Field("meta")
	require.True(t, ok)
	return f.Record
}

func TestRecord_Set(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		value   any
		wantErr bool
	}{
		{name: "long", field: "id", value: int64(7)},
		{name: "int", field: "count", value: int32(3)},
		{name: "float", field: "ratio", value: float32(0.5)},
		{name: "double", field: "value", value: 1.25},
		{name: "string", field: "label", value: "a"},
		{name: "boolean", field: "ok", value: true},
		{name: "int for long", field: "id", value: 7, wantErr: true},
		{name: "int64 for int", field: "count", value: int64(3), wantErr: true},
		{name: "double for float", field: "ratio", value: 0.5, wantErr: true},
		{name: "number for string", field: "label", value: 1, wantErr: true},
		{name: "unknown field", field: "nope", value: "x", wantErr: true},
		{name: "map for record", field: "meta", value: map[string]any{}, wantErr: true},
		{name: "nil record", field: "meta", value: (*Record)(nil), wantErr: true},
		{name: "record of other schema", field: "meta", value: New(testSchema), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(testSchema)
			err := r.Set(tt.field, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, r.Has(tt.field))
				return
			}
			require.NoError(t, err)
			got, ok := r.Get(tt.field)
			assert.True(t, ok)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestRecord_Nested(t *testing.T) {
	r := New(testSchema)
	meta := New(metaSchema(t))
	require.NoError(t, r.Set("meta", meta))

	got, ok := r.Nested("meta")
	require.True(t, ok)
	assert.Same(t, meta, got)
	assert.Equal(t, 0, got.Len())

	_, ok = r.Nested("id")
	assert.False(t, ok)
}

func TestRecord_MapAndEqual(t *testing.T) {
	build := func(source string) *Record {
		r := New(testSchema)
		require.NoError(t, r.Set("id", int64(1)))
		meta := New(metaSchema(t))
		if source != "" {
			require.NoError(t, meta.Set("source", source))
		}
		require.NoError(t, r.Set("meta", meta))
		return r
	}

	a, b := build("gw"), build("gw")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(build("other")))
	assert.False(t, a.Equal(build("")))
	assert.False(t, a.Equal(nil))

	assert.Equal(t, map[string]any{
		"id":   int64(1),
		"meta": map[string]any{"source": "gw"},
	}, a.Map())
	assert.Equal(t, map[string]any{"id": int64(1), "meta": map[string]any{}}, build("").Map())
}
