// Package transcoder maps payload trees onto record schemas.
//
// Fields are visited in declaration order. Scalars are coerced with an
// explicit table per field kind; nested records are always instantiated,
// empty when the payload lacks them. An absent nested record with required
// scalars below it fails as a missing field. The first failure aborts the
// record.
package transcoder

import (
	"math"
	"strconv"
	"strings"

	apperrors "github.com/jittakal/kafeventavro/internal/errors"
	"github.com/jittakal/kafeventavro/internal/payload"
	"github.com/jittakal/kafeventavro/pkg/record"
	"github.com/jittakal/kafeventavro/pkg/schema"
)

// Transcoder builds typed records from payload trees. It holds no state and
// is safe for concurrent use.
type Transcoder struct{}

// New creates a Transcoder.
func New() *Transcoder {
	return &Transcoder{}
}

// Transcode builds a record of s from an object payload.
func (t *Transcoder) Transcode(p *payload.Node, s *schema.Schema) (*record.Record, error) {
	return t.visitRecord(p, s, "")
}

func (t *Transcoder) visitRecord(p *payload.Node, s *schema.Schema, prefix string) (*record.Record, error) {
	rec := record.New(s)
	for _, f := range s.Fields() {
		path := f.Name
		if prefix != "" {
			path = prefix + "." + f.Name
		}

		node, present := p.Lookup(f.Name)
		if present && node.Kind() == payload.KindNull {
			present = false
		}

		var value any
		switch {
		case f.Kind == schema.KindRecord && !present:
			if missing := firstRequired(f.Record, path); missing != "" {
				return nil, &apperrors.MissingFieldError{Path: missing}
			}
			value = record.New(f.Record)
		case f.Kind == schema.KindRecord:
			if node.Kind() != payload.KindObject {
				return nil, coercionError(path, f.Kind, node)
			}
			nested, err := t.visitRecord(node, f.Record, path)
			if err != nil {
				return nil, err
			}
			value = nested
		case !present && f.Optional:
			continue
		case !present:
			return nil, &apperrors.MissingFieldError{Path: path}
		default:
			v, err := coerce(f.Kind, node)
			if err != nil {
				return nil, coercionError(path, f.Kind, node)
			}
			value = v
		}

		if err := rec.Set(f.Name, value); err != nil {
			return nil, &apperrors.EncodeError{Path: path, Err: err}
		}
	}
	return rec, nil
}

// firstRequired returns the path of the first required scalar reachable from
// an empty record of s. Nested children of an empty record are empty too.
func firstRequired(s *schema.Schema, prefix string) string {
	for _, f := range s.Fields() {
		path := prefix + "." + f.Name
		switch {
		case f.Kind == schema.KindRecord:
			if missing := firstRequired(f.Record, path); missing != "" {
				return missing
			}
		case !f.Optional:
			return path
		}
	}
	return ""
}

func coercionError(path string, want schema.Kind, node *payload.Node) error {
	return &apperrors.TypeCoercionError{
		Path:  path,
		Want:  want.String(),
		Got:   node.Kind().String(),
		Value: node.Literal(),
	}
}

type coerceFunc func(n *payload.Node) (any, bool)

var coercions = map[schema.Kind]coerceFunc{
	schema.KindInt:     toInt,
	schema.KindLong:    toLong,
	schema.KindFloat:   toFloat,
	schema.KindDouble:  toDouble,
	schema.KindString:  toString,
	schema.KindBoolean: toBoolean,
}

func coerce(kind schema.Kind, n *payload.Node) (any, error) {
	fn, ok := coercions[kind]
	if !ok {
		return nil, apperrors.ErrTypeCoercion
	}
	v, ok := fn(n)
	if !ok {
		return nil, apperrors.ErrTypeCoercion
	}
	return v, nil
}

func numericText(n *payload.Node) (string, bool) {
	switch n.Kind() {
	case payload.KindNumber:
		return n.Text(), true
	case payload.KindString:
		s := strings.TrimSpace(n.Text())
		return s, s != ""
	}
	return "", false
}

func parseIntegral(n *payload.Node, bits int) (int64, bool) {
	s, ok := numericText(n)
	if !ok {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, bits); err == nil {
		return i, true
	}

	// 5.0 and 1e3 are integral even though ParseInt rejects them.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, false
	}
	limit := math.Ldexp(1, bits-1)
	if f < -limit || f >= limit {
		return 0, false
	}
	return int64(f), true
}

func toInt(n *payload.Node) (any, bool) {
	i, ok := parseIntegral(n, 32)
	return int32(i), ok
}

func toLong(n *payload.Node) (any, bool) {
	return parseIntegral(n, 64)
}

func parseFinite(n *payload.Node, bits int) (float64, bool) {
	s, ok := numericText(n)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func toFloat(n *payload.Node) (any, bool) {
	f, ok := parseFinite(n, 32)
	return float32(f), ok
}

func toDouble(n *payload.Node) (any, bool) {
	return parseFinite(n, 64)
}

func toString(n *payload.Node) (any, bool) {
	switch n.Kind() {
	case payload.KindString, payload.KindNumber:
		return n.Text(), true
	case payload.KindBool:
		return strconv.FormatBool(n.Bool()), true
	}
	return nil, false
}

func toBoolean(n *payload.Node) (any, bool) {
	switch n.Kind() {
	case payload.KindBool:
		return n.Bool(), true
	case payload.KindString:
		switch n.Text() {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return nil, false
}
