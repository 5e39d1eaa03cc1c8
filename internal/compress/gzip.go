package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// GzipCodec writes single-member gzip streams.
type GzipCodec struct {
	level int
}

var _ Codec = GzipCodec{}

// NewGzipCodec creates a gzip codec with the default level.
func NewGzipCodec() GzipCodec {
	return GzipCodec{level: gzip.DefaultCompression}
}

// Compress compresses data into one gzip member.
func (c GzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to gzip data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reads a gzip stream.
func (c GzipCodec) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to gunzip data: %w", err)
	}
	return out, nil
}

func (GzipCodec) Name() string      { return Gzip }
func (GzipCodec) Extension() string { return ".gz" }
