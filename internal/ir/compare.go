package ir

import (
	"cmp"
	"errors"
	"fmt"
	"strings"
)

// ErrIncomparable is returned when two values of different kinds are compared.
// There is no implicit coercion between kinds (an Int never equals a Float).
var ErrIncomparable = errors.New("incomparable values")

// Compare orders two scalar values of the same kind.
// Returns -1, 0 or 1, or ErrIncomparable when kinds differ, either side is
// null, or the kind has no ordering (lists and objects).
func Compare(a, b Value) (int, error) {
	if IsNull(a) || IsNull(b) {
		return 0, fmt.Errorf("%w: null has no ordering", ErrIncomparable)
	}
	if a.Kind() != b.Kind() {
		return 0, fmt.Errorf("%w: %s vs %s", ErrIncomparable, a.Kind(), b.Kind())
	}

	switch av := a.(type) {
	case Bool:
		return compareBool(bool(av), bool(b.(Bool))), nil
	case Int:
		return cmp.Compare(av, b.(Int)), nil
	case Float:
		return cmp.Compare(av, b.(Float)), nil
	case String:
		return strings.Compare(string(av), string(b.(String))), nil
	case Time:
		return av.Time.Compare(b.(Time).Time), nil
	default:
		return 0, fmt.Errorf("%w: %s values are not ordered", ErrIncomparable, a.Kind())
	}
}

// Order is a total order over all values, used for index keys and sorting.
// Null sorts first, then values are grouped by kind and ordered within a kind.
// Lists compare element-wise; objects compare by canonical key order then values.
func Order(a, b Value) int {
	an, bn := IsNull(a), IsNull(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	}

	if a.Kind() != b.Kind() {
		return cmp.Compare(a.Kind(), b.Kind())
	}

	switch av := a.(type) {
	case List:
		bv := b.(List)
		for i := 0; i < len(av) && i < len(bv); i++ {
			if c := Order(av[i], bv[i]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(av), len(bv))
	case Object:
		bv := b.(Object)
		ak, bk := av.SortedKeys(), bv.SortedKeys()
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := compareKeysRFC8785(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := Order(av[ak[i]], bv[bk[i]]); c != 0 {
				return c
			}
		}
		return cmp.Compare(len(ak), len(bk))
	}

	c, err := Compare(a, b)
	if err != nil {
		return 0
	}
	return c
}

// Equal reports deep equality. Null equals Null; values of different kinds
// are never equal.
func Equal(a, b Value) bool {
	an, bn := IsNull(a), IsNull(b)
	if an || bn {
		return an && bn
	}
	if a.Kind() != b.Kind() {
		return false
	}

	switch av := a.(type) {
	case List:
		bv := b.(List)
		if len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Object:
		bv := b.(Object)
		if len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			w, ok := bv[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case Time:
		return av.Time.Equal(b.(Time).Time)
	default:
		return a == b
	}
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	default:
		return 1
	}
}
