// Package filter implements the MongoDB-style filter language used to query
// entities.
//
// A wire filter such as `{"age": {"$gte": 25}, "status": "active"}` is parsed
// into a small typed tree of Comparison, And, Or and Not nodes. The tree is
// then compiled into a parameterized SQL statement for the document store, or
// evaluated in-process by Match.
//
// The language is lenient: unknown operators, malformed logical operands and
// operands of the wrong type are dropped from the tree's output rather than
// rejected.
package filter

import (
	"errors"
	"strings"
)

// Operator is a field comparison operator such as $eq or $in.
type Operator string

const (
	OpEq            Operator = "$eq"
	OpNe            Operator = "$ne"
	OpGt            Operator = "$gt"
	OpGte           Operator = "$gte"
	OpLt            Operator = "$lt"
	OpLte           Operator = "$lte"
	OpIn            Operator = "$in"
	OpNin           Operator = "$nin"
	OpExists        Operator = "$exists"
	OpRegex         Operator = "$regex"
	OpStartsWith    Operator = "$sw"
	OpNotStartsWith Operator = "$nsw"
)

const (
	keyAnd = "$and"
	keyOr  = "$or"
	keyNot = "$not"
)

var ErrNotObject = errors.New("filter: top-level filter must be a JSON object")

// Node is one of Comparison, And, Or or Not.
type Node interface {
	isNode()
}

// Comparison is a leaf condition on a single (possibly dotted) field.
type Comparison struct {
	Field string
	Op    Operator
	Value Value
}

type And struct {
	Children []Node
}

type Or struct {
	Children []Node
}

type Not struct {
	Child Node
}

func (Comparison) isNode() {}
func (And) isNode()        {}
func (Or) isNode()         {}
func (Not) isNode()        {}

// Supported reports whether the comparison yields a condition. Unknown
// operators and mistyped operands do not.
func (c Comparison) Supported() bool {
	if c.Field == "" {
		return false
	}

	switch c.Op {
	case OpEq, OpNe:
		return c.Value.Kind() != KindObject
	case OpGt, OpGte, OpLt, OpLte:
		k := c.Value.Kind()
		return k == KindString || k == KindNumber
	case OpIn, OpNin:
		return c.Value.Kind() == KindArray
	case OpExists:
		return c.Value.Kind() == KindBool
	case OpRegex, OpStartsWith, OpNotStartsWith:
		return c.Value.Kind() == KindString
	}
	return false
}

// Parse converts a decoded filter object into a Node. Keys are visited in
// sorted order; use ParseJSON to keep the order of a JSON document.
// A nil map yields a nil Node.
func Parse(raw map[string]any) Node {
	if raw == nil {
		return nil
	}
	return parseObject(FromAny(raw).Members())
}

// ParseValue converts an object Value into a Node.
func ParseValue(v Value) (Node, error) {
	if v.Kind() != KindObject {
		return nil, ErrNotObject
	}
	return parseObject(v.Members()), nil
}

// ParseJSON decodes a JSON filter object into a Node.
func ParseJSON(b []byte) (Node, error) {
	var v Value
	if err := v.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return ParseValue(v)
}

// parseObject returns the implicit AND of every condition in members, or the
// condition itself when there is only one.
func parseObject(members []Member) Node {
	nodes := make([]Node, 0, len(members))

	for _, m := range members {
		switch {
		case m.Key == keyAnd:
			if children, ok := parseList(m.Value); ok {
				nodes = append(nodes, And{Children: children})
			}
		case m.Key == keyOr:
			if children, ok := parseList(m.Value); ok {
				nodes = append(nodes, Or{Children: children})
			}
		case m.Key == keyNot:
			if m.Value.Kind() == KindObject {
				nodes = append(nodes, Not{Child: parseObject(m.Value.Members())})
			}
		case strings.HasPrefix(m.Key, "$"):
			// unsupported logical operator
		default:
			nodes = append(nodes, parseField(m.Key, m.Value)...)
		}
	}

	if len(nodes) == 1 {
		return nodes[0]
	}
	return And{Children: nodes}
}

func parseList(v Value) ([]Node, bool) {
	if v.Kind() != KindArray {
		return nil, false
	}

	children := make([]Node, 0, len(v.Elements()))
	for _, e := range v.Elements() {
		if e.Kind() != KindObject {
			continue
		}
		children = append(children, parseObject(e.Members()))
	}
	return children, true
}

func parseField(field string, v Value) []Node {
	if v.Kind() != KindObject {
		return []Node{Comparison{Field: field, Op: OpEq, Value: v}}
	}

	nodes := make([]Node, 0, len(v.Members()))
	for _, m := range v.Members() {
		nodes = append(nodes, Comparison{Field: field, Op: Operator(m.Key), Value: m.Value})
	}
	return nodes
}
