package query

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// Select describes one query: which records (Where), which fields of them
// (Fields, empty = all), in what order, and how many.
//
// Order of application: match, sort, skip Offset, keep Limit (0 = no limit),
// keep at most one when First is set, project.
type Select struct {
	Where   Predicate
	Fields  []string
	OrderBy []Order
	First   bool
	Limit   int
	Offset  int
}

// Order is one sort key.
type Order struct {
	Field string
	Desc  bool
}

func (o Order) String() string {
	if o.Desc {
		return "-" + o.Field
	}
	return o.Field
}

// ParseOrder reads a comma separated sort specification. A leading "-"
// sorts that key descending, a leading "+" ascending: "-year,title".
func ParseOrder(spec string) ([]Order, error) {
	var out []Order
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		o := Order{Field: part}
		switch part[0] {
		case '-':
			o = Order{Field: part[1:], Desc: true}
		case '+':
			o = Order{Field: part[1:]}
		}
		if o.Field == "" {
			return nil, fmt.Errorf("empty sort key in %q", spec)
		}
		out = append(out, o)
	}
	return out, nil
}

// Validate checks the whole select against a schema.
// Projection and sort fields must exist (INVALID_FIELD_PROJECTION); sort
// fields must also be indexed, and Limit and Offset must not be negative
// (INVALID_PREDICATE).
func (sel Select) Validate(s *schema.Schema) error {
	if err := Validate(sel.Where, s); err != nil {
		return err
	}
	if _, err := s.Projection(sel.Fields); err != nil {
		return err
	}
	for _, o := range sel.OrderBy {
		f, ok := s.Field(o.Field)
		if !ok {
			return &ir.StoreError{Code: ir.ErrCodeInvalidFieldProjection, Message: "unknown sort field", Field: o.Field}
		}
		if !f.Indexed {
			return ir.InvalidPredicate(o.Field, "sorting requires an indexed field")
		}
	}
	if sel.Limit < 0 {
		return ir.InvalidPredicate("", "limit must not be negative")
	}
	if sel.Offset < 0 {
		return ir.InvalidPredicate("", "offset must not be negative")
	}
	return nil
}

// SortRecords sorts records in place by the given keys, then by _id.
// Values compare with ir.Order, so null sorts first ascending and last
// descending. With no keys, records end up ordered by _id.
func SortRecords(recs []ir.Object, order []Order) {
	slices.SortStableFunc(recs, func(a, b ir.Object) int {
		for _, o := range order {
			c := ir.Order(a.Get(o.Field), b.Get(o.Field))
			if o.Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		ida, _ := a.ID()
		idb, _ := b.ID()
		return cmp.Compare(ida, idb)
	})
}

// Paginate applies Offset, Limit and First to an already sorted result.
func (sel Select) Paginate(recs []ir.Object) []ir.Object {
	if sel.Offset > 0 {
		if sel.Offset >= len(recs) {
			return recs[:0]
		}
		recs = recs[sel.Offset:]
	}
	if limit := sel.EffectiveLimit(); limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs
}

// EffectiveLimit is the number of records the select can return at most,
// or 0 when unbounded.
func (sel Select) EffectiveLimit() int {
	if sel.First && (sel.Limit == 0 || sel.Limit > 1) {
		return 1
	}
	return sel.Limit
}
