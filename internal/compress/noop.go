package compress

import "bytes"

// NoOpCodec passes data through unchanged.
type NoOpCodec struct{}

var _ Codec = NoOpCodec{}

// NewNoOpCodec creates a pass-through codec.
func NewNoOpCodec() NoOpCodec {
	return NoOpCodec{}
}

// Compress returns a copy of data.
func (NoOpCodec) Compress(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

// Decompress returns a copy of data.
func (NoOpCodec) Decompress(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

func (NoOpCodec) Name() string      { return None }
func (NoOpCodec) Extension() string { return "" }
