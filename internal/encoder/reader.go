package encoder

import (
	"bytes"
	"fmt"

	"github.com/linkedin/goavro/v2"

	"github.com/jittakal/kafeventavro/pkg/record"
	"github.com/jittakal/kafeventavro/pkg/schema"
)

// Container is a decoded object container.
type Container struct {
	Schema  *schema.Schema
	Codec   string
	Records []*record.Record
}

// Decode reads an object container into its embedded schema and records.
func Decode(data []byte) (*Container, error) {
	ocf, err := goavro.NewOCFReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to read container header: %w", err)
	}

	s, err := schema.Parse([]byte(ocf.Codec().Schema()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded schema: %w", err)
	}

	c := &Container{Schema: s, Codec: ocf.CompressionName()}
	for ocf.Scan() {
		datum, err := ocf.Read()
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", len(c.Records), err)
		}
		rec, err := fromNative(datum, s)
		if err != nil {
			return nil, fmt.Errorf("failed to convert record %d: %w", len(c.Records), err)
		}
		c.Records = append(c.Records, rec)
	}
	if err := ocf.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan container: %w", err)
	}
	return c, nil
}

func fromNative(datum any, s *schema.Schema) (*record.Record, error) {
	m, ok := datum.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("record %s: unexpected datum %T", s.Name(), datum)
	}

	rec := record.New(s)
	for _, f := range s.Fields() {
		v := m[f.Name]
		if v == nil {
			continue
		}
		if f.Optional {
			union, ok := v.(map[string]any)
			if !ok || len(union) != 1 {
				return nil, fmt.Errorf("field %q: unexpected union value %v", f.Name, v)
			}
			for _, branch := range union {
				v = branch
			}
		}
		if f.Kind == schema.KindRecord {
			nested, err := fromNative(v, f.Record)
			if err != nil {
				return nil, err
			}
			v = nested
		}
		if err := rec.Set(f.Name, v); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
