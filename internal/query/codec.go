package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// node is the JSON form of a predicate:
//
//	{"op": ">", "field": "year", "value": 2000}
//	{"op": "OR", "left": {...}, "right": {...}}
type node struct {
	Op    string          `json:"op"`
	Field string          `json:"field,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
	Left  *node           `json:"left,omitempty"`
	Right *node           `json:"right,omitempty"`
}

// Marshal encodes a predicate as JSON. A nil predicate encodes as null.
func Marshal(p Predicate) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	n, err := toNode(p)
	if err != nil {
		return nil, err
	}
	return json.Marshal(n)
}

func toNode(p Predicate) (*node, error) {
	if c, ok := AsCombinator(p); ok {
		left, err := toNode(c.Left)
		if err != nil {
			return nil, err
		}
		right, err := toNode(c.Right)
		if err != nil {
			return nil, err
		}
		return &node{Op: string(c.Kind), Left: left, Right: right}, nil
	}
	c, ok := AsComparison(p)
	if !ok {
		return nil, fmt.Errorf("cannot encode predicate of type %T", p)
	}
	value, err := json.Marshal(ir.ToAny(c.Value))
	if err != nil {
		return nil, fmt.Errorf("encoding operand of %s: %w", c.Field, err)
	}
	return &node{Op: string(c.Op), Field: c.Field, Value: value}, nil
}

// Unmarshal decodes a predicate from its JSON form. With a schema, operands
// are converted to their field's declared kind as Parse does.
func Unmarshal(data []byte, s *schema.Schema) (Predicate, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var n node
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return nil, fmt.Errorf("decoding predicate: %w", err)
	}
	p := &parser{schema: s}
	return p.fromNode(&n)
}

func (p *parser) fromNode(n *node) (Predicate, error) {
	if n == nil {
		return nil, fmt.Errorf("missing predicate node")
	}
	switch CombinatorKind(n.Op) {
	case KindAnd, KindOr:
		left, err := p.fromNode(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := p.fromNode(n.Right)
		if err != nil {
			return nil, err
		}
		return Combinator{Kind: CombinatorKind(n.Op), Left: left, Right: right}, nil
	}

	op := Op(n.Op)
	if !op.Indexed() && op != OpContains {
		return nil, fmt.Errorf("unknown operator %q", n.Op)
	}
	if n.Field == "" {
		return nil, fmt.Errorf("operator %s requires a field", n.Op)
	}

	raw, err := decodeRaw(n.Value)
	if err != nil {
		return nil, fmt.Errorf("operand of %s: %w", n.Field, err)
	}

	if op == OpIn || op == OpNotIn {
		elems, ok := raw.([]any)
		if !ok {
			return nil, ir.InvalidPredicate(n.Field, "operator %s requires a list operand", op)
		}
		list := make(ir.List, 0, len(elems))
		for _, elem := range elems {
			val, err := p.typed(n.Field, op, elem)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return Comparison{Field: n.Field, Op: op, Value: list}, nil
	}

	val, err := p.typed(n.Field, op, raw)
	if err != nil {
		return nil, err
	}
	return Comparison{Field: n.Field, Op: op, Value: val}, nil
}

// decodeRaw decodes an operand keeping integers exact.
func decodeRaw(data json.RawMessage) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
