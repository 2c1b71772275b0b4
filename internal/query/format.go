package query

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/shelf/internal/ir"
)

// String renders a predicate in the text syntax accepted by Parse, e.g.
//
//	(year > 2000 OR year = 1999)
//
// Combinators are always parenthesized. A nil predicate renders as "*".
func String(p Predicate) string {
	if p == nil {
		return "*"
	}
	var b strings.Builder
	writePredicate(&b, p)
	return b.String()
}

// String implements fmt.Stringer.
func (c Comparison) String() string { return String(c) }

// String implements fmt.Stringer.
func (c Combinator) String() string { return String(c) }

func writePredicate(b *strings.Builder, p Predicate) {
	if c, ok := AsCombinator(p); ok {
		b.WriteByte('(')
		writePredicate(b, c.Left)
		b.WriteByte(' ')
		b.WriteString(string(c.Kind))
		b.WriteByte(' ')
		writePredicate(b, c.Right)
		b.WriteByte(')')
		return
	}
	c, ok := AsComparison(p)
	if !ok {
		fmt.Fprintf(b, "<%T>", p)
		return
	}

	b.WriteString(c.Field)
	b.WriteByte(' ')
	switch c.Op {
	case OpEq:
		b.WriteString("=")
	case OpIn:
		b.WriteString("IN")
	case OpNotIn:
		b.WriteString("NOT IN")
	case OpContains:
		b.WriteString("CONTAINS")
	default:
		b.WriteString(string(c.Op))
	}
	b.WriteByte(' ')

	if c.Op == OpIn || c.Op == OpNotIn {
		list, _ := c.Value.(ir.List)
		b.WriteByte('(')
		for i, v := range list {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(FormatLiteral(v))
		}
		b.WriteByte(')')
		return
	}
	b.WriteString(FormatLiteral(c.Value))
}

// FormatLiteral renders one operand. Strings and timestamps are single
// quoted; floats always carry a decimal point or exponent so they parse back
// as floats.
func FormatLiteral(v ir.Value) string {
	switch val := v.(type) {
	case nil, ir.Null:
		return "null"
	case ir.Bool:
		return strconv.FormatBool(bool(val))
	case ir.Int:
		return strconv.FormatInt(int64(val), 10)
	case ir.Float:
		f := float64(val)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return quote(strconv.FormatFloat(f, 'g', -1, 64))
		}
		s := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		return s
	case ir.String:
		return quote(string(val))
	case ir.Time:
		return quote(val.UTC().Format(time.RFC3339Nano))
	default:
		data, err := ir.MarshalCanonical(v)
		if err != nil {
			return fmt.Sprintf("<%s>", v.Kind())
		}
		return string(data)
	}
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
