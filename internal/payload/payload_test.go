package payload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/jittakal/kafeventavro/internal/errors"
)

func TestParse(t *testing.T) {
	n, err := Parse([]byte(`{"a": 12345678901234567890, "b": [1, "x", null], "c": true, "d": {"e": 1.50}}`))
	require.NoError(t, err)
	assert.Equal(t, KindObject, n.Kind())
	assert.Equal(t, 4, n.Len())

	a, ok := n.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, KindNumber, a.Kind())
	assert.Equal(t, "12345678901234567890", a.Text())

	b, _ := n.Lookup("b")
	assert.Equal(t, KindArray, b.Kind())
	assert.Equal(t, 3, b.Len())

	c, _ := n.Lookup("c")
	assert.True(t, c.Bool())
	assert.Equal(t, "true", c.Literal())

	d, _ := n.Lookup("d")
	e, ok := d.Lookup("e")
	require.True(t, ok)
	assert.Equal(t, "1.50", e.Text())

	_, ok = a.Lookup("x")
	assert.False(t, ok)
}

func TestParse_Errors(t *testing.T) {
	for _, body := range []string{``, `{`, `{"a":1} {"b":2}`, `{"a":1} x`, `nope`} {
		_, err := Parse([]byte(body))
		assert.Error(t, err, body)
	}
}

func TestExtractor_Extract(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		key      string
		wantErr  error
		wantKeys int
	}{
		{name: "envelope present", body: `{"gpsrecord": {"accessid": 1, "beamid": 2}}`, key: "gpsrecord", wantKeys: 2},
		{name: "empty envelope", body: `{"gpsrecord": {}}`, key: "gpsrecord", wantKeys: 0},
		{name: "other keys ignored", body: `{"meta": 1, "gpsrecord": {"a": 1}}`, key: "gpsrecord", wantKeys: 1},
		{name: "malformed json", body: `{"gpsrecord": `, key: "gpsrecord", wantErr: apperrors.ErrPayloadFormat},
		{name: "array top level", body: `[{"gpsrecord": {}}]`, key: "gpsrecord", wantErr: apperrors.ErrPayloadFormat},
		{name: "trailing data", body: `{"gpsrecord": {}}{}`, key: "gpsrecord", wantErr: apperrors.ErrPayloadFormat},
		{name: "key absent", body: `{"other": {}}`, key: "gpsrecord", wantErr: apperrors.ErrEnvelopeKeyMissing},
		{name: "key not object", body: `{"gpsrecord": "x"}`, key: "gpsrecord", wantErr: apperrors.ErrEnvelopeKeyMissing},
		{name: "key null", body: `{"gpsrecord": null}`, key: "gpsrecord", wantErr: apperrors.ErrEnvelopeKeyMissing},
		{name: "no key configured", body: `{"gpsrecord": {}}`, key: "", wantErr: apperrors.ErrEnvelopeKeyMissing},
	}

	x := NewExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := x.Extract([]byte(tt.body), tt.key)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, n)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, KindObject, n.Kind())
			assert.Equal(t, tt.wantKeys, n.Len())
		})
	}
}
