// Package query provides the predicate tree shelf stores evaluate, and the
// tooling around it: validation against a schema, a brute-force matcher,
// a text syntax, a JSON form, and the select options (projection, order,
// pagination) that accompany a predicate.
//
// SEALED INTERFACE:
//
// Predicate is a sealed interface using the marker method pattern. Only
// Comparison and Combinator implement it, so evaluators can switch
// exhaustively:
//
//	switch p := pred.(type) {
//	case Comparison, *Comparison:
//	    // leaf: dispatch on p.Op
//	case Combinator, *Combinator:
//	    // AND / OR over p.Left and p.Right
//	}
//
// Predicates are immutable values. They hold no reference to a store, so the
// same predicate can be evaluated by every backend sharing a schema.
//
// NEGATION:
//
// There is no NOT combinator. Negation lives in the operators: != is the
// complement of ==, and "not in" is the complement of "in".
//
// NULL SEMANTICS:
//
// An absent field reads as null. == and != treat null as an ordinary value
// (year == null matches records without a year). Range operators never match
// null, and a null operand is rejected for them.
package query
