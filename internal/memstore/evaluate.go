package memstore

import (
	"github.com/roach88/shelf/internal/index"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
)

// evaluate resolves a validated predicate to the set of matching ids.
// The caller holds at least the read lock.
//
//   - == and in read one or more buckets
//   - != and not in are the complement of == and in against all live ids
//   - ranges scan the matching buckets in key order
//   - contains scans the table (the one linear path)
//   - AND evaluates the cheaper side first and stops when it is empty
//   - OR evaluates both sides
func (s *Store) evaluate(p query.Predicate) (index.Set, error) {
	if p == nil {
		return s.table.IDs(), nil
	}
	if c, ok := query.AsCombinator(p); ok {
		return s.evaluateCombinator(c)
	}
	c, ok := query.AsComparison(p)
	if !ok {
		return nil, ir.InvalidPredicate("", "unknown predicate type: %T", p)
	}
	return s.evaluateComparison(c)
}

func (s *Store) evaluateCombinator(c query.Combinator) (index.Set, error) {
	switch c.Kind {
	case query.KindOr:
		left, err := s.evaluate(c.Left)
		if err != nil {
			return nil, err
		}
		right, err := s.evaluate(c.Right)
		if err != nil {
			return nil, err
		}
		return index.Union(left, right), nil

	case query.KindAnd:
		first, second := c.Left, c.Right
		if s.estimate(second) < s.estimate(first) {
			first, second = second, first
		}
		a, err := s.evaluate(first)
		if err != nil {
			return nil, err
		}
		if len(a) == 0 && s.shortCircuit {
			return a, nil
		}
		b, err := s.evaluate(second)
		if err != nil {
			return nil, err
		}
		return index.Intersect(a, b), nil
	}
	return nil, ir.InvalidPredicate("", "unknown combinator %q", c.Kind)
}

func (s *Store) evaluateComparison(c query.Comparison) (index.Set, error) {
	if c.Op == query.OpContains {
		return s.scanContains(c), nil
	}

	ix, ok := s.indexes[c.Field]
	if !ok {
		return nil, ir.InvalidPredicate(c.Field, "operator %s requires an indexed field", c.Op)
	}

	switch c.Op {
	case query.OpEq:
		return ix.LookupEq(c.Value)
	case query.OpNeq:
		eq, err := ix.LookupEq(c.Value)
		if err != nil {
			return nil, err
		}
		return index.Difference(s.table.IDs(), eq), nil
	case query.OpLt, query.OpLte, query.OpGt, query.OpGte:
		return ix.LookupRange(c.Op, c.Value)
	case query.OpIn, query.OpNotIn:
		list, ok := c.Value.(ir.List)
		if !ok {
			return nil, ir.InvalidPredicate(c.Field, "operator %s requires a list operand", c.Op)
		}
		in, err := ix.LookupIn(list)
		if err != nil {
			return nil, err
		}
		if c.Op == query.OpNotIn {
			return index.Difference(s.table.IDs(), in), nil
		}
		return in, nil
	}
	return nil, ir.InvalidPredicate(c.Field, "unknown operator %q", c.Op)
}

func (s *Store) scanContains(c query.Comparison) index.Set {
	out := index.Set{}
	s.table.Range(func(id ir.ID, rec ir.Object) bool {
		if query.ContainsValue(rec.Get(c.Field), c.Value) {
			out.Add(id)
		}
		return true
	})
	return out
}

// estimate is an upper bound on the size of a predicate's result, used to
// order the children of AND. Bucket reads are exact; everything else may
// touch every live record.
func (s *Store) estimate(p query.Predicate) int {
	all := s.table.Len()
	if c, ok := query.AsCombinator(p); ok {
		l, r := s.estimate(c.Left), s.estimate(c.Right)
		if c.Kind == query.KindAnd {
			return min(l, r)
		}
		return min(l+r, all)
	}
	c, ok := query.AsComparison(p)
	if !ok {
		return all
	}
	ix, ok := s.indexes[c.Field]
	if !ok {
		return all
	}
	switch c.Op {
	case query.OpEq:
		return ix.Count(c.Value)
	case query.OpIn:
		n := 0
		if list, ok := c.Value.(ir.List); ok {
			for _, v := range list {
				n += ix.Count(v)
			}
		}
		return min(n, all)
	}
	return all
}
