// Package compress wraps finished containers in an outer compression frame
// before they are written to storage.
//
// Every codec produces a standard framed stream (gzip member, zstd frame,
// lz4 frame) so stored objects can be read back with stock tools.
package compress

import (
	"fmt"
	"strings"
)

// Compression names accepted in configuration.
const (
	None = "none"
	Gzip = "gzip"
	Zstd = "zstd"
	LZ4  = "lz4"
)

// Codec compresses and decompresses whole objects.
type Codec interface {
	// Compress returns a newly allocated compressed copy of data.
	Compress(data []byte) ([]byte, error)
	// Decompress reverses Compress.
	Decompress(data []byte) ([]byte, error)
	// Name returns the configuration name of the codec.
	Name() string
	// Extension returns the file name suffix, including the dot, or "".
	Extension() string
}

var builtinCodecs = map[string]Codec{
	None: NewNoOpCodec(),
	Gzip: NewGzipCodec(),
	Zstd: NewZstdCodec(),
	LZ4:  NewLZ4Codec(),
}

// GetCodec retrieves a built-in Codec by name. An empty name selects None.
func GetCodec(name string) (Codec, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "uncompressed":
		key = None
	case "gz":
		key = Gzip
	case "zst", "zstandard":
		key = Zstd
	}
	if codec, ok := builtinCodecs[key]; ok {
		return codec, nil
	}
	return nil, fmt.Errorf("unsupported compression: %s (supported: none, gzip, zstd, lz4)", name)
}

// ForPath returns the codec whose extension ends path, or None.
func ForPath(path string) Codec {
	for _, codec := range builtinCodecs {
		if ext := codec.Extension(); ext != "" && strings.HasSuffix(path, ext) {
			return codec
		}
	}
	return builtinCodecs[None]
}
