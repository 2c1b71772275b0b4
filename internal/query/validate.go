package query

import (
	"math"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// Validate checks a predicate against a schema and returns the first
// problem as an INVALID_PREDICATE *ir.StoreError.
//
// A nil predicate is valid and matches every record. Stores call Validate
// before evaluating anything, so a short-circuited subtree can never hide an
// invalid one.
//
// Rules:
//  1. Every referenced field exists in the schema
//  2. Index-backed operators (everything but contains) need an indexed field
//  3. Operands have the field's declared kind (no coercion)
//  4. Range operands are not null
//  5. in / not in take a list operand
//  6. contains applies to list and object fields; object operands are keys
//  7. Combinators have both children
//
// Validate is a pure function with no side effects.
func Validate(p Predicate, s *schema.Schema) error {
	errs := Check(p, s)
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// Check is like Validate but reports every problem found.
func Check(p Predicate, s *schema.Schema) []error {
	if p == nil {
		return nil
	}
	v := &validator{schema: s}
	v.validatePredicate(p)
	return v.errs
}

// validator accumulates errors during traversal.
type validator struct {
	schema *schema.Schema
	errs   []error
}

func (v *validator) fail(field, format string, args ...any) {
	v.errs = append(v.errs, ir.InvalidPredicate(field, format, args...))
}

// validatePredicate recursively validates a predicate node.
func (v *validator) validatePredicate(p Predicate) {
	if c, ok := AsComparison(p); ok {
		v.validateComparison(c)
		return
	}
	if c, ok := AsCombinator(p); ok {
		v.validateCombinator(c)
		return
	}
	v.fail("", "unknown predicate type: %T", p)
}

func (v *validator) validateCombinator(c Combinator) {
	if c.Kind != KindAnd && c.Kind != KindOr {
		v.fail("", "unknown combinator %q", c.Kind)
	}
	if c.Left == nil || c.Right == nil {
		v.fail("", "%s requires two operands", c.Kind)
	}
	if c.Left != nil {
		v.validatePredicate(c.Left)
	}
	if c.Right != nil {
		v.validatePredicate(c.Right)
	}
}

func (v *validator) validateComparison(c Comparison) {
	f, ok := v.schema.Field(c.Field)
	if !ok {
		v.fail(c.Field, "unknown field")
		return
	}

	switch {
	case c.Op == OpContains:
		v.validateContains(f, c)
		return
	case !c.Op.Indexed():
		v.fail(c.Field, "unknown operator %q", c.Op)
		return
	case !f.Indexed:
		v.fail(c.Field, "operator %s requires an indexed field", c.Op)
		return
	}

	switch c.Op {
	case OpIn, OpNotIn:
		list, ok := c.Value.(ir.List)
		if !ok {
			v.fail(c.Field, "operator %s requires a list operand, got %s", c.Op, kindOf(c.Value))
			return
		}
		for _, elem := range list {
			v.checkOperand(f, c.Op, elem, true)
		}
	default:
		v.checkOperand(f, c.Op, c.Value, !c.Op.IsRange())
	}
}

func (v *validator) checkOperand(f schema.Field, op Op, val ir.Value, nullOK bool) {
	if ir.IsNull(val) {
		if !nullOK {
			v.fail(f.Name, "operator %s does not accept null", op)
		}
		return
	}
	if val.Kind() != f.Kind {
		v.fail(f.Name, "operand of kind %s does not match field kind %s", val.Kind(), f.Kind)
		return
	}
	if fl, ok := val.(ir.Float); ok && math.IsNaN(float64(fl)) {
		v.fail(f.Name, "NaN is not a valid operand")
	}
}

func (v *validator) validateContains(f schema.Field, c Comparison) {
	switch f.Kind {
	case ir.KindList:
		if fl, ok := c.Value.(ir.Float); ok && math.IsNaN(float64(fl)) {
			v.fail(f.Name, "NaN is not a valid operand")
		}
	case ir.KindObject:
		if _, ok := c.Value.(ir.String); !ok {
			v.fail(f.Name, "contains on an object field takes a string key, got %s", kindOf(c.Value))
		}
	default:
		v.fail(f.Name, "contains requires a list or object field, %s is %s", f.Name, f.Kind)
	}
}

func kindOf(v ir.Value) ir.Kind {
	if v == nil {
		return ir.KindNull
	}
	return v.Kind()
}
