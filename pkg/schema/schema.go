// Package schema models the subset of Apache Avro record schemas the
// transcoder maps JSON payloads onto.
//
// A Schema is an immutable tree of named fields. Scalar fields carry one of
// the primitive kinds; nested fields carry their own record Schema. A field
// declared as a two-branch union with "null" is optional, every other field
// is required.
//
//	s, err := schema.Parse(avsc)
//	if err != nil {
//	    return err
//	}
//	for _, f := range s.Fields() {
//	    fmt.Println(f.Name, f.Kind, f.Optional)
//	}
package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/linkedin/goavro/v2"
)

// Kind is the Avro type of a field.
type Kind int

// Supported field kinds.
const (
	KindInt Kind = iota + 1
	KindLong
	KindFloat
	KindDouble
	KindString
	KindBoolean
	KindRecord
)

var kindNames = map[Kind]string{
	KindInt:     "int",
	KindLong:    "long",
	KindFloat:   "float",
	KindDouble:  "double",
	KindString:  "string",
	KindBoolean: "boolean",
	KindRecord:  "record",
}

var primitives = map[string]Kind{
	"int":     KindInt,
	"long":    KindLong,
	"float":   KindFloat,
	"double":  KindDouble,
	"string":  KindString,
	"boolean": KindBoolean,
}

// String returns the Avro type name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Field is one named field of a record schema.
type Field struct {
	Name     string
	Kind     Kind
	Optional bool
	// Record is the nested schema for KindRecord fields, nil otherwise.
	Record *Schema
}

// UnionBranch returns the branch name goavro expects when wrapping a
// non-null value of an optional field.
func (f Field) UnionBranch() string {
	if f.Kind == KindRecord {
		return f.Record.Name()
	}
	return f.Kind.String()
}

// Schema is an immutable record schema.
type Schema struct {
	name      string
	namespace string
	fields    []Field
	index     map[string]int

	// set on the top-level schema only
	raw         string
	codec       *goavro.Codec
	fingerprint uint64
}

// Parse parses an Avro record schema. The top-level type must be a record.
func Parse(data []byte) (*Schema, error) {
	codec, err := goavro.NewCodec(string(data))
	if err != nil {
		return nil, fmt.Errorf("invalid avro schema: %w", err)
	}

	var root any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to decode schema json: %w", err)
	}

	obj, ok := root.(map[string]any)
	if !ok || obj["type"] != "record" {
		return nil, fmt.Errorf("top-level schema must be a record")
	}

	p := &parser{named: make(map[string]*Schema), open: make(map[string]bool)}
	s, err := p.record(obj, "")
	if err != nil {
		return nil, err
	}

	s.raw = string(data)
	s.codec = codec
	s.fingerprint = xxhash.Sum64String(codec.CanonicalSchema())
	return s, nil
}

// MustParse is like Parse but panics on error.
func MustParse(data []byte) *Schema {
	s, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the full name of the record.
func (s *Schema) Name() string { return s.name }

// Namespace returns the namespace of the record.
func (s *Schema) Namespace() string { return s.namespace }

// Fields returns the fields in declaration order. The slice must not be modified.
func (s *Schema) Fields() []Field { return s.fields }

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// JSON returns the schema text as it was parsed. Empty for nested records.
func (s *Schema) JSON() string { return s.raw }

// Codec returns the goavro codec of a top-level schema, nil for nested records.
func (s *Schema) Codec() *goavro.Codec { return s.codec }

// Fingerprint returns the xxhash64 of the canonical schema form.
func (s *Schema) Fingerprint() uint64 { return s.fingerprint }

// FingerprintHex returns Fingerprint as 16 hex digits.
func (s *Schema) FingerprintHex() string {
	return fmt.Sprintf("%016x", s.fingerprint)
}

type parser struct {
	named map[string]*Schema
	open  map[string]bool
}

func (p *parser) record(obj map[string]any, enclosing string) (*Schema, error) {
	name, _ := obj["name"].(string)
	if name == "" {
		return nil, fmt.Errorf("record without name")
	}
	ns, _ := obj["namespace"].(string)
	full, namespace := qualify(name, ns, enclosing)
	if _, exists := p.named[full]; exists {
		return nil, fmt.Errorf("record %q defined twice", full)
	}

	rawFields, ok := obj["fields"].([]any)
	if !ok {
		return nil, fmt.Errorf("record %q: fields must be an array", full)
	}

	s := &Schema{
		name:      full,
		namespace: namespace,
		fields:    make([]Field, 0, len(rawFields)),
		index:     make(map[string]int, len(rawFields)),
	}
	p.open[full] = true
	defer delete(p.open, full)

	for i, rf := range rawFields {
		fobj, ok := rf.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %q: field %d is not an object", full, i)
		}
		fname, _ := fobj["name"].(string)
		if fname == "" {
			return nil, fmt.Errorf("record %q: field %d has no name", full, i)
		}
		if _, dup := s.index[fname]; dup {
			return nil, fmt.Errorf("record %q: duplicate field %q", full, fname)
		}

		field, err := p.field(fname, fobj["type"], namespace)
		if err != nil {
			return nil, fmt.Errorf("record %q: %w", full, err)
		}
		s.index[fname] = len(s.fields)
		s.fields = append(s.fields, field)
	}

	p.named[full] = s
	return s, nil
}

func (p *parser) field(name string, typ any, namespace string) (Field, error) {
	if union, ok := typ.([]any); ok {
		branch, err := optionalBranch(union)
		if err != nil {
			return Field{}, fmt.Errorf("field %q: %w", name, err)
		}
		f, err := p.field(name, branch, namespace)
		if err != nil {
			return Field{}, err
		}
		f.Optional = true
		return f, nil
	}

	kind, nested, err := p.single(typ, namespace)
	if err != nil {
		return Field{}, fmt.Errorf("field %q: %w", name, err)
	}
	return Field{Name: name, Kind: kind, Record: nested}, nil
}

func (p *parser) single(typ any, namespace string) (Kind, *Schema, error) {
	switch t := typ.(type) {
	case string:
		if kind, ok := primitives[t]; ok {
			return kind, nil, nil
		}
		return p.reference(t, namespace)
	case map[string]any:
		tname, _ := t["type"].(string)
		if tname == "record" {
			s, err := p.record(t, namespace)
			if err != nil {
				return 0, nil, err
			}
			return KindRecord, s, nil
		}
		if kind, ok := primitives[tname]; ok {
			return kind, nil, nil
		}
		return 0, nil, fmt.Errorf("unsupported type %q", tname)
	default:
		return 0, nil, fmt.Errorf("unsupported type declaration %v", typ)
	}
}

func (p *parser) reference(name, namespace string) (Kind, *Schema, error) {
	candidates := []string{name}
	if !strings.Contains(name, ".") && namespace != "" {
		candidates = []string{namespace + "." + name, name}
	}
	for _, c := range candidates {
		if p.open[c] {
			return 0, nil, fmt.Errorf("recursive record %q is not supported", c)
		}
		if s, ok := p.named[c]; ok {
			return KindRecord, s, nil
		}
	}
	return 0, nil, fmt.Errorf("unsupported type %q", name)
}

// optionalBranch returns the non-null branch of a ["null", T] union.
func optionalBranch(union []any) (any, error) {
	if len(union) != 2 {
		return nil, fmt.Errorf("only two-branch unions with null are supported")
	}
	switch {
	case union[0] == "null" && union[1] != "null":
		return union[1], nil
	case union[1] == "null" && union[0] != "null":
		return union[0], nil
	}
	return nil, fmt.Errorf("only two-branch unions with null are supported")
}

func qualify(name, ns, enclosing string) (full, namespace string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name, name[:i]
	}
	if ns == "" {
		ns = enclosing
	}
	if ns == "" {
		return name, ""
	}
	return ns + "." + name, ns
}
