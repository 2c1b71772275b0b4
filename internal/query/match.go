package query

import "github.com/roach88/shelf/internal/ir"

// Matches applies p to one record by direct inspection, without any index.
//
// This is the reference semantics every store must reproduce. It assumes p
// passed Validate; operands of the wrong kind simply do not match. A nil
// predicate matches everything.
func Matches(p Predicate, rec ir.Object) bool {
	if p == nil {
		return true
	}
	if c, ok := AsCombinator(p); ok {
		switch c.Kind {
		case KindAnd:
			return Matches(c.Left, rec) && Matches(c.Right, rec)
		case KindOr:
			return Matches(c.Left, rec) || Matches(c.Right, rec)
		}
		return false
	}
	c, ok := AsComparison(p)
	if !ok {
		return false
	}

	val := rec.Get(c.Field)
	switch c.Op {
	case OpEq:
		return ir.Equal(val, c.Value)
	case OpNeq:
		return !ir.Equal(val, c.Value)
	case OpLt, OpLte, OpGt, OpGte:
		if ir.IsNull(val) || ir.IsNull(c.Value) {
			return false
		}
		cmp, err := ir.Compare(val, c.Value)
		if err != nil {
			return false
		}
		return rangeHolds(c.Op, cmp)
	case OpIn:
		return inList(val, c.Value)
	case OpNotIn:
		return !inList(val, c.Value)
	case OpContains:
		return contains(val, c.Value)
	}
	return false
}

// rangeHolds reports whether a comparison result cmp (field vs operand)
// satisfies op.
func rangeHolds(op Op, cmp int) bool {
	switch op {
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	}
	return false
}

func inList(val, operand ir.Value) bool {
	list, ok := operand.(ir.List)
	if !ok {
		return false
	}
	for _, candidate := range list {
		if ir.Equal(val, candidate) {
			return true
		}
	}
	return false
}

// contains reports whether a list value holds an element equal to needle, or
// an object value has the key needle.
func contains(val, needle ir.Value) bool {
	switch v := val.(type) {
	case ir.List:
		for _, elem := range v {
			if ir.Equal(elem, needle) {
				return true
			}
		}
	case ir.Object:
		key, ok := needle.(ir.String)
		if !ok {
			return false
		}
		_, present := v[string(key)]
		return present
	}
	return false
}

// ContainsValue is the membership test behind the contains operator, exported
// for stores that scan records themselves.
func ContainsValue(val, needle ir.Value) bool { return contains(val, needle) }
