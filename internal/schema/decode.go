package schema

import (
	"fmt"
	"math"
	"time"

	"github.com/roach88/shelf/internal/ir"
)

// Decode rehydrates a record read by a persistence backend.
//
// Backends serialize with their own formats (YAML, msgpack, SQLite columns),
// which lose the distinction between some kinds. Decode restores it using the
// declared field kinds:
//   - timestamps from time.Time, RFC 3339 strings or unix nanoseconds
//   - integers of any width, and integral floats for int fields
//   - ints for float fields
//
// Fields the schema does not declare are rejected.
func (s *Schema) Decode(raw map[string]any) (ir.Object, error) {
	out := make(ir.Object, len(raw))
	for name, v := range raw {
		f, ok := s.Field(name)
		if !ok {
			return nil, ir.InvalidRecord(name, "unknown field")
		}
		val, err := decodeValue(f.Kind, v)
		if err != nil {
			return nil, ir.InvalidRecord(name, "%v", err)
		}
		out[name] = val
	}
	return out, nil
}

// DecodeValue converts a raw operand to the kind of field name. Used by
// predicate parsers so literals match their field's declared kind.
func (s *Schema) DecodeValue(name string, v any) (ir.Value, error) {
	f, ok := s.Field(name)
	if !ok {
		return nil, fmt.Errorf("unknown field %q", name)
	}
	return decodeValue(f.Kind, v)
}

func decodeValue(kind ir.Kind, v any) (ir.Value, error) {
	if v == nil {
		return ir.Null{}, nil
	}
	if iv, ok := v.(ir.Value); ok {
		return coerce(kind, iv)
	}

	switch kind {
	case ir.KindTime:
		switch t := v.(type) {
		case time.Time:
			return ir.NewTime(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp %q: %w", t, err)
			}
			return ir.NewTime(parsed), nil
		case int64:
			return ir.NewTime(time.Unix(0, t).UTC()), nil
		}
	}

	val, err := ir.FromAny(v)
	if err != nil {
		return nil, err
	}
	return coerce(kind, val)
}

// coerce applies the lossless conversions between kinds that serializers
// commonly blur.
func coerce(kind ir.Kind, v ir.Value) (ir.Value, error) {
	switch {
	case ir.IsNull(v), v.Kind() == kind:
		return v, nil
	case kind == ir.KindFloat && v.Kind() == ir.KindInt:
		return ir.Float(v.(ir.Int)), nil
	case kind == ir.KindInt && v.Kind() == ir.KindFloat:
		f := float64(v.(ir.Float))
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil, fmt.Errorf("expected int, got non-integral %v", f)
		}
		return ir.Int(int64(f)), nil
	case kind == ir.KindTime && v.Kind() == ir.KindString:
		parsed, err := time.Parse(time.RFC3339Nano, string(v.(ir.String)))
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp %q: %w", v, err)
		}
		return ir.NewTime(parsed), nil
	}
	return nil, fmt.Errorf("expected %s, got %s", kind, v.Kind())
}

// Encode flattens a record to plain Go values for a serializer. Timestamps
// are written as RFC 3339 strings with nanoseconds so text formats keep them
// exact.
func (s *Schema) Encode(rec ir.Object) map[string]any {
	out := make(map[string]any, len(rec))
	for name, v := range rec {
		if t, ok := v.(ir.Time); ok {
			out[name] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		out[name] = ir.ToAny(v)
	}
	return out
}
