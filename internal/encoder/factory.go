package encoder

import (
	"fmt"
	"strings"

	"github.com/linkedin/goavro/v2"
)

// NormalizeCodec maps a configured codec name to its container label.
// An empty name selects the null codec.
func NormalizeCodec(name string) (string, error) {
	switch strings.ToLower(name) {
	case "", "null", "none", "uncompressed":
		return goavro.CompressionNullLabel, nil
	case "deflate":
		return goavro.CompressionDeflateLabel, nil
	case "snappy":
		return goavro.CompressionSnappyLabel, nil
	default:
		return "", fmt.Errorf("unsupported container codec: %s (supported: %s)", name, strings.Join(SupportedCodecs(), ", "))
	}
}

// SupportedCodecs returns the supported container block codecs.
func SupportedCodecs() []string {
	return []string{
		goavro.CompressionNullLabel,
		goavro.CompressionDeflateLabel,
		goavro.CompressionSnappyLabel,
	}
}
