package index

import (
	"maps"
	"slices"

	"github.com/roach88/shelf/internal/ir"
)

// Set is a set of record identifiers.
type Set map[ir.ID]struct{}

// NewSet returns a set holding ids.
func NewSet(ids ...ir.ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id.
func (s Set) Add(id ir.ID) { s[id] = struct{}{} }

// Has reports whether id is in the set.
func (s Set) Has(id ir.ID) bool {
	_, ok := s[id]
	return ok
}

// Len returns the number of identifiers.
func (s Set) Len() int { return len(s) }

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	maps.Copy(out, s)
	return out
}

// Sorted returns the identifiers in ascending order.
func (s Set) Sorted() []ir.ID {
	return slices.Sorted(maps.Keys(s))
}

// Union returns a new set with the members of a and b.
func Union(a, b Set) Set {
	out := make(Set, max(len(a), len(b)))
	maps.Copy(out, a)
	maps.Copy(out, b)
	return out
}

// Intersect returns a new set with the members common to a and b,
// iterating over the smaller of the two.
func Intersect(a, b Set) Set {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(Set, len(a))
	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out
}

// Difference returns a new set with the members of a not in b.
func Difference(a, b Set) Set {
	out := make(Set, len(a))
	for id := range a {
		if _, ok := b[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}
