// Package payload parses raw event bodies into typed JSON trees and extracts
// the record payload from its envelope.
package payload

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	apperrors "github.com/jittakal/kafeventavro/internal/errors"
)

// DefaultEnvelopeKey is the envelope key of GPS record events.
const DefaultEnvelopeKey = "gpsrecord"

// Kind is the JSON type of a node.
type Kind uint8

// JSON node kinds.
const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Node is an immutable JSON value. Numbers keep their literal text.
type Node struct {
	kind    Kind
	boolean bool
	text    string
	items   []*Node
	fields  map[string]*Node
}

// Kind returns the JSON type of the node.
func (n *Node) Kind() Kind { return n.kind }

// Lookup returns the member of an object node.
func (n *Node) Lookup(key string) (*Node, bool) {
	if n == nil || n.kind != KindObject {
		return nil, false
	}
	v, ok := n.fields[key]
	return v, ok
}

// Len returns the number of members or items of a container node.
func (n *Node) Len() int {
	switch n.kind {
	case KindObject:
		return len(n.fields)
	case KindArray:
		return len(n.items)
	}
	return 0
}

// Bool returns the value of a boolean node.
func (n *Node) Bool() bool { return n.boolean }

// Text returns the string value of a string node or the literal of a number node.
func (n *Node) Text() string { return n.text }

// Literal renders a scalar node for error messages.
func (n *Node) Literal() string {
	switch n.kind {
	case KindNull:
		return "null"
	case KindBool:
		if n.boolean {
			return "true"
		}
		return "false"
	case KindNumber:
		return n.text
	case KindString:
		return fmt.Sprintf("%q", n.text)
	}
	return ""
}

// Parse decodes exactly one JSON document into a Node tree.
func Parse(data []byte) (*Node, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after json document")
	}
	return build(v), nil
}

func build(v any) *Node {
	switch t := v.(type) {
	case nil:
		return &Node{kind: KindNull}
	case bool:
		return &Node{kind: KindBool, boolean: t}
	case json.Number:
		return &Node{kind: KindNumber, text: t.String()}
	case string:
		return &Node{kind: KindString, text: t}
	case []any:
		items := make([]*Node, len(t))
		for i, item := range t {
			items[i] = build(item)
		}
		return &Node{kind: KindArray, items: items}
	case map[string]any:
		fields := make(map[string]*Node, len(t))
		for k, item := range t {
			fields[k] = build(item)
		}
		return &Node{kind: KindObject, fields: fields}
	}
	return &Node{kind: KindNull}
}

// Extractor pulls the record payload out of an event body.
type Extractor struct{}

// NewExtractor creates an Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract parses body and returns the object stored under envelopeKey.
// It returns a PayloadFormatError when body is not a single JSON object and
// an EnvelopeKeyMissingError when the key is absent or not an object.
func (x *Extractor) Extract(body []byte, envelopeKey string) (*Node, error) {
	if envelopeKey == "" {
		return nil, &apperrors.EnvelopeKeyMissingError{Reason: "no envelope key configured"}
	}

	root, err := Parse(body)
	if err != nil {
		return nil, &apperrors.PayloadFormatError{Err: err}
	}
	if root.kind != KindObject {
		return nil, &apperrors.PayloadFormatError{Err: fmt.Errorf("top-level value is %s, not object", root.kind)}
	}

	inner, ok := root.Lookup(envelopeKey)
	if !ok {
		return nil, &apperrors.EnvelopeKeyMissingError{Key: envelopeKey, Reason: "absent"}
	}
	if inner.kind != KindObject {
		return nil, &apperrors.EnvelopeKeyMissingError{Key: envelopeKey, Reason: "value is " + inner.kind.String() + ", not object"}
	}
	return inner, nil
}
