package query

import "github.com/roach88/shelf/internal/ir"

// Predicate is a filter over records.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Comparison: field <op> operand
//   - Combinator: left AND right, left OR right
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Op is a comparison operator.
type Op string

const (
	OpEq       Op = "=="
	OpNeq      Op = "!="
	OpLt       Op = "<"
	OpLte      Op = "<="
	OpGt       Op = ">"
	OpGte      Op = ">="
	OpIn       Op = "in"
	OpNotIn    Op = "not in"
	OpContains Op = "contains"
)

// IsRange reports whether op is one of < <= > >=.
func (op Op) IsRange() bool {
	switch op {
	case OpLt, OpLte, OpGt, OpGte:
		return true
	}
	return false
}

// Indexed reports whether op is answered from a field index.
// Only contains falls back to scanning records.
func (op Op) Indexed() bool {
	switch op {
	case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte, OpIn, OpNotIn:
		return true
	}
	return false
}

// Comparison compares one field against an operand.
//
// For in and not in, Value is an ir.List of candidates. For contains on a
// list field, Value is the element looked for; on an object field, Value is
// the ir.String key looked for.
type Comparison struct {
	Field string
	Op    Op
	Value ir.Value
}

func (Comparison) predicateNode() {}

// CombinatorKind is AND or OR.
type CombinatorKind string

const (
	KindAnd CombinatorKind = "AND"
	KindOr  CombinatorKind = "OR"
)

// Combinator joins two predicates.
type Combinator struct {
	Kind  CombinatorKind
	Left  Predicate
	Right Predicate
}

func (Combinator) predicateNode() {}

func compare(field string, op Op, v ir.Value) Predicate {
	if v == nil {
		v = ir.Null{}
	}
	return Comparison{Field: field, Op: op, Value: v}
}

// Eq builds field == v.
func Eq(field string, v ir.Value) Predicate { return compare(field, OpEq, v) }

// Neq builds field != v.
func Neq(field string, v ir.Value) Predicate { return compare(field, OpNeq, v) }

// Lt builds field < v.
func Lt(field string, v ir.Value) Predicate { return compare(field, OpLt, v) }

// Lte builds field <= v.
func Lte(field string, v ir.Value) Predicate { return compare(field, OpLte, v) }

// Gt builds field > v.
func Gt(field string, v ir.Value) Predicate { return compare(field, OpGt, v) }

// Gte builds field >= v.
func Gte(field string, v ir.Value) Predicate { return compare(field, OpGte, v) }

// In builds field in (values...).
func In(field string, values ...ir.Value) Predicate {
	return Comparison{Field: field, Op: OpIn, Value: listOf(values)}
}

// NotIn builds field not in (values...).
func NotIn(field string, values ...ir.Value) Predicate {
	return Comparison{Field: field, Op: OpNotIn, Value: listOf(values)}
}

// Contains builds field contains v.
func Contains(field string, v ir.Value) Predicate { return compare(field, OpContains, v) }

func listOf(values []ir.Value) ir.List {
	out := make(ir.List, len(values))
	for i, v := range values {
		if v == nil {
			v = ir.Null{}
		}
		out[i] = v
	}
	return out
}

// And builds left AND right.
func And(left, right Predicate) Predicate {
	return Combinator{Kind: KindAnd, Left: left, Right: right}
}

// Or builds left OR right.
func Or(left, right Predicate) Predicate {
	return Combinator{Kind: KindOr, Left: left, Right: right}
}

// AndAll folds predicates with AND, left-associatively.
// Nil entries are skipped; a single predicate is returned as is; none yields nil.
func AndAll(preds ...Predicate) Predicate { return fold(KindAnd, preds) }

// OrAll folds predicates with OR, left-associatively.
// Nil entries are skipped; a single predicate is returned as is; none yields nil.
func OrAll(preds ...Predicate) Predicate { return fold(KindOr, preds) }

func fold(kind CombinatorKind, preds []Predicate) Predicate {
	var out Predicate
	for _, p := range preds {
		if p == nil {
			continue
		}
		if out == nil {
			out = p
			continue
		}
		out = Combinator{Kind: kind, Left: out, Right: p}
	}
	return out
}

// AsComparison unwraps a Comparison held by value or pointer.
func AsComparison(p Predicate) (Comparison, bool) {
	switch c := p.(type) {
	case Comparison:
		return c, true
	case *Comparison:
		if c != nil {
			return *c, true
		}
	}
	return Comparison{}, false
}

// AsCombinator unwraps a Combinator held by value or pointer.
func AsCombinator(p Predicate) (Combinator, bool) {
	switch c := p.(type) {
	case Combinator:
		return c, true
	case *Combinator:
		if c != nil {
			return *c, true
		}
	}
	return Combinator{}, false
}

// Fields returns the distinct field names a predicate references, in
// first-seen order.
func Fields(p Predicate) []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(Predicate)
	walk = func(p Predicate) {
		if c, ok := AsComparison(p); ok {
			if !seen[c.Field] {
				seen[c.Field] = true
				out = append(out, c.Field)
			}
			return
		}
		if c, ok := AsCombinator(p); ok {
			walk(c.Left)
			walk(c.Right)
		}
	}
	walk(p)
	return out
}
