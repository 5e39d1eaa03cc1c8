package encoder

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/linkedin/goavro/v2"

	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/pkg/encoder"
	"github.com/jittakal/kafeventavro/pkg/record"
	"github.com/jittakal/kafeventavro/pkg/schema"
)

// Ensure implementations satisfy interfaces at compile time.
var (
	_ encoder.Encoder         = (*AvroEncoder)(nil)
	_ encoder.ContainerWriter = (*ContainerWriter)(nil)
)

// DefaultBlockLength is the number of records per container data block.
const DefaultBlockLength = 100

// AvroConfig configures container output.
type AvroConfig struct {
	// Codec is the block compression codec: null, deflate or snappy.
	Codec string
	// BlockLength is the number of records buffered per data block.
	BlockLength int
}

// AvroEncoder opens Avro object containers.
type AvroEncoder struct {
	codec       string
	blockLength int
}

// NewAvroEncoder creates a new Avro encoder with the specified block codec.
func NewAvroEncoder(cfg AvroConfig) (*AvroEncoder, error) {
	codec, err := NormalizeCodec(cfg.Codec)
	if err != nil {
		return nil, err
	}

	blockLength := cfg.BlockLength
	if blockLength <= 0 {
		blockLength = DefaultBlockLength
	}

	return &AvroEncoder{
		codec:       codec,
		blockLength: blockLength,
	}, nil
}

// Codec returns the block compression codec name.
func (e *AvroEncoder) Codec() string {
	return e.codec
}

// FileExtension returns the file extension.
func (e *AvroEncoder) FileExtension() string {
	return ".avro"
}

// Open writes a container header embedding s and returns a writer for it.
func (e *AvroEncoder) Open(s *schema.Schema) (encoder.ContainerWriter, error) {
	if s == nil || s.Codec() == nil {
		return nil, fmt.Errorf("container schema must be a top-level record schema")
	}

	buf := new(bytes.Buffer)
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               buf,
		Codec:           s.Codec(),
		CompressionName: e.codec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create OCF writer: %w", err)
	}

	return &ContainerWriter{
		schema:      s,
		buf:         buf,
		ocf:         ocf,
		blockLength: e.blockLength,
		block:       make([]any, 0, e.blockLength),
	}, nil
}

// ContainerWriter appends typed records to one in-memory container.
type ContainerWriter struct {
	schema      *schema.Schema
	buf         *bytes.Buffer
	ocf         *goavro.OCFWriter
	blockLength int
	block       []any
	scratch     []byte
	count       int
	finished    bool
}

// Append validates r against the container schema and buffers it in the
// current block.
func (w *ContainerWriter) Append(r *record.Record) error {
	if w.finished {
		return &apperrors.EncoderStateError{Op: "append"}
	}
	if r == nil {
		return &apperrors.EncodeError{Err: errors.New("nil record")}
	}
	if r.Schema() != w.schema {
		return &apperrors.EncodeError{
			Err: fmt.Errorf("record schema %s does not match container schema %s", r.Schema().Name(), w.schema.Name()),
		}
	}

	native, err := toNative(r, "")
	if err != nil {
		return err
	}

	w.scratch, err = w.schema.Codec().BinaryFromNative(w.scratch[:0], native)
	if err != nil {
		return &apperrors.EncodeError{Err: err}
	}

	w.block = append(w.block, native)
	w.count++
	if len(w.block) >= w.blockLength {
		return w.flush()
	}
	return nil
}

// Finish flushes the pending block and returns the container bytes.
func (w *ContainerWriter) Finish() ([]byte, error) {
	if w.finished {
		return nil, &apperrors.EncoderStateError{Op: "finish"}
	}
	w.finished = true

	if err := w.flush(); err != nil {
		return nil, err
	}

	out := bytes.Clone(w.buf.Bytes())
	w.buf, w.ocf, w.block, w.scratch = nil, nil, nil, nil
	return out, nil
}

// Count returns the number of appended records.
func (w *ContainerWriter) Count() int {
	return w.count
}

func (w *ContainerWriter) flush() error {
	if len(w.block) == 0 {
		return nil
	}
	if err := w.ocf.Append(w.block); err != nil {
		return &apperrors.EncodeError{Err: fmt.Errorf("failed to write block: %w", err)}
	}
	w.block = w.block[:0]
	return nil
}

// toNative converts a typed record to goavro's native form: optional fields
// become unions, unset optional fields become nil.
func toNative(r *record.Record, prefix string) (map[string]any, error) {
	s := r.Schema()
	out := make(map[string]any, len(s.Fields()))

	for _, f := range s.Fields() {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}

		v, ok := r.Get(f.Name)
		if !ok {
			if f.Optional {
				out[f.Name] = nil
				continue
			}
			return nil, &apperrors.EncodeError{Path: path, Err: errors.New("required field is unset")}
		}

		if f.Kind == schema.KindRecord {
			nested, isRecord := v.(*record.Record)
			if !isRecord || nested == nil {
				return nil, &apperrors.EncodeError{Path: path, Err: fmt.Errorf("%T is not a record", v)}
			}
			m, err := toNative(nested, path)
			if err != nil {
				return nil, err
			}
			v = m
		}

		if f.Optional {
			v = goavro.Union(f.UnionBranch(), v)
		}
		out[f.Name] = v
	}
	return out, nil
}
