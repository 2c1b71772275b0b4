// Package index implements the per-field ordered index: a B-tree keyed by
// field value whose entries (buckets) hold the identifiers of the records
// currently carrying that value.
package index

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/btree"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
)

// degree of the underlying B-tree.
const degree = 32

var (
	// ErrKindMismatch is returned when a value of the wrong kind is added to or
	// removed from an index.
	ErrKindMismatch = errors.New("value kind does not match index kind")

	// ErrNotIndexed is returned when removing a (value, id) pair the index
	// does not hold.
	ErrNotIndexed = errors.New("identifier not indexed under value")
)

type bucket struct {
	key ir.Value
	ids Set
}

func lessBucket(a, b *bucket) bool {
	return ir.Order(a.key, b.key) < 0
}

// Index is the ordered index of one field.
//
// Keys follow ir.Order for the field's kind, with the null key (absent or
// null values) first. Range lookups never return the null bucket.
//
// Index is not safe for concurrent use; the owning store serializes access.
type Index struct {
	field   string
	kind    ir.Kind
	tree    *btree.BTreeG[*bucket]
	entries int
}

// New returns an empty index for a scalar field.
func New(field string, kind ir.Kind) *Index {
	return &Index{
		field: field,
		kind:  kind,
		tree:  btree.NewG(degree, lessBucket),
	}
}

// Field returns the indexed field name.
func (ix *Index) Field() string { return ix.field }

// Kind returns the indexed field kind.
func (ix *Index) Kind() ir.Kind { return ix.kind }

// Len returns the number of distinct keys (buckets).
func (ix *Index) Len() int { return ix.tree.Len() }

// Entries returns the number of (value, id) pairs held.
func (ix *Index) Entries() int { return ix.entries }

func (ix *Index) key(v ir.Value) (ir.Value, error) {
	if ir.IsNull(v) {
		return ir.Null{}, nil
	}
	if v.Kind() != ix.kind {
		return nil, fmt.Errorf("index %s: %w: %s vs %s", ix.field, ErrKindMismatch, v.Kind(), ix.kind)
	}
	return v, nil
}

// Add inserts id into the bucket for v, creating the bucket if needed.
func (ix *Index) Add(v ir.Value, id ir.ID) error {
	k, err := ix.key(v)
	if err != nil {
		return err
	}
	b, ok := ix.tree.Get(&bucket{key: k})
	if !ok {
		b = &bucket{key: k, ids: make(Set, 1)}
		ix.tree.ReplaceOrInsert(b)
	}
	if !b.ids.Has(id) {
		b.ids.Add(id)
		ix.entries++
	}
	return nil
}

// Remove deletes id from the bucket for v and drops the bucket once empty.
func (ix *Index) Remove(v ir.Value, id ir.ID) error {
	k, err := ix.key(v)
	if err != nil {
		return err
	}
	b, ok := ix.tree.Get(&bucket{key: k})
	if !ok || !b.ids.Has(id) {
		return fmt.Errorf("index %s: %w: %s", ix.field, ErrNotIndexed, id)
	}
	delete(b.ids, id)
	ix.entries--
	if len(b.ids) == 0 {
		ix.tree.Delete(b)
	}
	return nil
}

// operand checks a lookup operand. Lookups report INVALID_PREDICATE.
func (ix *Index) operand(v ir.Value, nullOK bool) (ir.Value, error) {
	if ir.IsNull(v) {
		if !nullOK {
			return nil, ir.InvalidPredicate(ix.field, "null has no ordering")
		}
		return ir.Null{}, nil
	}
	if v.Kind() != ix.kind {
		return nil, ir.InvalidPredicate(ix.field, "operand of kind %s does not match field kind %s", v.Kind(), ix.kind)
	}
	if f, ok := v.(ir.Float); ok && math.IsNaN(float64(f)) {
		return nil, ir.InvalidPredicate(ix.field, "NaN is not a valid operand")
	}
	return v, nil
}

// LookupEq returns a copy of the bucket for v, or an empty set.
func (ix *Index) LookupEq(v ir.Value) (Set, error) {
	k, err := ix.operand(v, true)
	if err != nil {
		return nil, err
	}
	if b, ok := ix.tree.Get(&bucket{key: k}); ok {
		return b.ids.Clone(), nil
	}
	return Set{}, nil
}

// LookupIn returns the union of LookupEq over values.
func (ix *Index) LookupIn(values []ir.Value) (Set, error) {
	out := Set{}
	for _, v := range values {
		k, err := ix.operand(v, true)
		if err != nil {
			return nil, err
		}
		if b, ok := ix.tree.Get(&bucket{key: k}); ok {
			for id := range b.ids {
				out.Add(id)
			}
		}
	}
	return out, nil
}

// LookupRange returns the identifiers whose value satisfies value <op> v for
// op in < <= > >=. The scan visits only the matching buckets.
func (ix *Index) LookupRange(op query.Op, v ir.Value) (Set, error) {
	if !op.IsRange() {
		return nil, ir.InvalidPredicate(ix.field, "operator %s is not a range operator", op)
	}
	k, err := ix.operand(v, false)
	if err != nil {
		return nil, err
	}

	out := Set{}
	collect := func(b *bucket) bool {
		for id := range b.ids {
			out.Add(id)
		}
		return true
	}
	pivot := &bucket{key: k}

	switch op {
	case query.OpGt, query.OpGte:
		ix.tree.AscendGreaterOrEqual(pivot, func(b *bucket) bool {
			if op == query.OpGt && ir.Order(b.key, k) == 0 {
				return true
			}
			return collect(b)
		})
	case query.OpLt, query.OpLte:
		ix.tree.AscendLessThan(pivot, func(b *bucket) bool {
			if ir.IsNull(b.key) {
				return true
			}
			return collect(b)
		})
		if op == query.OpLte {
			if b, ok := ix.tree.Get(pivot); ok {
				collect(b)
			}
		}
	}
	return out, nil
}

// Count returns the size of the bucket for v. Used for cost estimates;
// operands of the wrong kind count as zero.
func (ix *Index) Count(v ir.Value) int {
	k, err := ix.operand(v, true)
	if err != nil {
		return 0
	}
	if b, ok := ix.tree.Get(&bucket{key: k}); ok {
		return len(b.ids)
	}
	return 0
}

// Ascend calls fn for each bucket in key order until fn returns false.
// fn must not modify the index or the set it is given.
func (ix *Index) Ascend(fn func(key ir.Value, ids Set) bool) {
	ix.tree.Ascend(func(b *bucket) bool {
		return fn(b.key, b.ids)
	})
}

// Clear removes every bucket.
func (ix *Index) Clear() {
	ix.tree.Clear(false)
	ix.entries = 0
}
