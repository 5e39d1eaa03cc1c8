package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetCodec(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantExt string
		wantErr bool
	}{
		{name: "", want: None},
		{name: "none", want: None},
		{name: "uncompressed", want: None},
		{name: "gzip", want: Gzip, wantExt: ".gz"},
		{name: "GZ", want: Gzip, wantExt: ".gz"},
		{name: "zstd", want: Zstd, wantExt: ".zst"},
		{name: " zst ", want: Zstd, wantExt: ".zst"},
		{name: "lz4", want: LZ4, wantExt: ".lz4"},
		{name: "brotli", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := GetCodec(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, codec.Name())
			assert.Equal(t, tt.wantExt, codec.Extension())
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("Obj\x01avro.schema gpsrecord "), 512)

	for _, name := range []string{None, Gzip, Zstd, LZ4} {
		t.Run(name, func(t *testing.T) {
			codec, err := GetCodec(name)
			require.NoError(t, err)

			compressed, err := codec.Compress(payload)
			require.NoError(t, err)
			if name != None {
				assert.Less(t, len(compressed), len(payload))
			}

			out, err := codec.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, payload, out)
		})
	}
}

func TestCodec_DoesNotAliasInput(t *testing.T) {
	payload := []byte("container bytes")
	out, err := NewNoOpCodec().Compress(payload)
	require.NoError(t, err)

	out[0] = 'X'
	assert.Equal(t, byte('c'), payload[0])
}

func TestCodec_CorruptInput(t *testing.T) {
	garbage := []byte("definitely not compressed")

	_, err := NewGzipCodec().Decompress(garbage)
	assert.Error(t, err)

	_, err = NewZstdCodec().Decompress(garbage)
	assert.Error(t, err)

	_, err = NewLZ4Codec().Decompress(garbage)
	assert.Error(t, err)
}

func TestForPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"s3://bucket/gps/dt=2024-01-01/pid=0/batch_1_a.avro", None},
		{"/tmp/batch_1_a.avro.gz", Gzip},
		{"gs://bucket/batch_1_a.avro.zst", Zstd},
		{"batch_1_a.avro.lz4", LZ4},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ForPath(tt.path).Name())
		})
	}
}
