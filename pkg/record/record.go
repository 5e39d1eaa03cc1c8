// Package record holds typed records: schema-conformant field values built
// by the transcoder and consumed by the container encoder.
//
// Values use the Go types goavro uses natively: int32 (int), int64 (long),
// float32 (float), float64 (double), string, bool and *Record for nested
// records. A field without a value is unset.
package record

import (
	"fmt"

	"github.com/jittakal/kafeventavro/pkg/schema"
)

// Record is a mapping from field name to typed value for one schema node.
type Record struct {
	schema *schema.Schema
	values map[string]any
}

// New returns an empty record of s with every field unset.
func New(s *schema.Schema) *Record {
	return &Record{schema: s, values: make(map[string]any, len(s.Fields()))}
}

// Schema returns the schema node the record conforms to.
func (r *Record) Schema() *schema.Schema { return r.schema }

// Set sets a field value. It fails when the field is unknown or the value's
// Go type does not match the field kind.
func (r *Record) Set(name string, value any) error {
	f, ok := r.schema.Field(name)
	if !ok {
		return fmt.Errorf("record %s has no field %q", r.schema.Name(), name)
	}
	if err := CheckValue(f, value); err != nil {
		return err
	}
	r.values[name] = value
	return nil
}

// Get returns the value of a field and whether it is set.
func (r *Record) Get(name string) (any, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Has reports whether a field is set.
func (r *Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Nested returns the nested record stored in a field.
func (r *Record) Nested(name string) (*Record, bool) {
	v, ok := r.values[name]
	if !ok {
		return nil, false
	}
	nested, ok := v.(*Record)
	return nested, ok
}

// Len returns the number of set fields.
func (r *Record) Len() int { return len(r.values) }

// Map renders the record as plain nested maps, omitting unset fields.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		if nested, ok := v.(*Record); ok {
			out[k] = nested.Map()
			continue
		}
		out[k] = v
	}
	return out
}

// Equal reports whether two records hold the same schema and values.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.schema.Name() != o.schema.Name() || len(r.values) != len(o.values) {
		return false
	}
	for k, v := range r.values {
		ov, ok := o.values[k]
		if !ok {
			return false
		}
		if nested, isRecord := v.(*Record); isRecord {
			onested, _ := ov.(*Record)
			if !nested.Equal(onested) {
				return false
			}
			continue
		}
		if v != ov {
			return false
		}
	}
	return true
}

// CheckValue verifies that value has the Go type required by the field.
func CheckValue(f schema.Field, value any) error {
	ok := false
	switch f.Kind {
	case schema.KindInt:
		_, ok = value.(int32)
	case schema.KindLong:
		_, ok = value.(int64)
	case schema.KindFloat:
		_, ok = value.(float32)
	case schema.KindDouble:
		_, ok = value.(float64)
	case schema.KindString:
		_, ok = value.(string)
	case schema.KindBoolean:
		_, ok = value.(bool)
	case schema.KindRecord:
		var nested *Record
		nested, ok = value.(*Record)
		if ok && (nested == nil || nested.schema != f.Record) {
			return fmt.Errorf("field %q: nested record does not match schema %s", f.Name, f.Record.Name())
		}
	}
	if !ok {
		return fmt.Errorf("field %q: %T is not a valid %s value", f.Name, value, f.Kind)
	}
	return nil
}
