package ir

import (
	"fmt"
	"maps"
	"slices"
	"time"
	"unicode/utf16"
)

// Value is a sealed interface over the field values a record may hold.
// Only Null, Bool, Int, Float, String, Time, List and Object implement it.
type Value interface {
	irValue() // Sealed - only these types implement it
	Kind() Kind
}

// Kind identifies the type of a Value and the declared type of a schema field.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTime
	KindList
	KindObject
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindBool:   "bool",
	KindInt:    "int",
	KindFloat:  "float",
	KindString: "string",
	KindTime:   "timestamp",
	KindList:   "list",
	KindObject: "object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Scalar reports whether values of this kind can be indexed.
func (k Kind) Scalar() bool {
	switch k {
	case KindBool, KindInt, KindFloat, KindString, KindTime:
		return true
	default:
		return false
	}
}

// ParseKind maps a declared type name to a Kind.
// "timestamp" and "time" are synonyms, as are "list"/"array" and "object"/"record".
func ParseKind(name string) (Kind, error) {
	switch name {
	case "bool", "boolean":
		return KindBool, nil
	case "int", "integer":
		return KindInt, nil
	case "float", "number":
		return KindFloat, nil
	case "string":
		return KindString, nil
	case "timestamp", "time":
		return KindTime, nil
	case "list", "array":
		return KindList, nil
	case "object", "record":
		return KindObject, nil
	default:
		return KindNull, fmt.Errorf("unknown type %q", name)
	}
}

// Null is the explicit null value.
type Null struct{}

func (Null) irValue()   {}
func (Null) Kind() Kind { return KindNull }

// Bool is a boolean value.
type Bool bool

func (Bool) irValue()   {}
func (Bool) Kind() Kind { return KindBool }

// Int is a 64-bit integer value.
type Int int64

func (Int) irValue()   {}
func (Int) Kind() Kind { return KindInt }

// Float is a 64-bit floating point value. NaN is never stored.
type Float float64

func (Float) irValue()   {}
func (Float) Kind() Kind { return KindFloat }

// String is a string value.
type String string

func (String) irValue()   {}
func (String) Kind() Kind { return KindString }

// Time is a timestamp value.
type Time struct {
	time.Time
}

func (Time) irValue()   {}
func (Time) Kind() Kind { return KindTime }

// NewTime wraps t as a Time value.
func NewTime(t time.Time) Time {
	return Time{Time: t}
}

// List is an ordered list of values. Lists are stored but never indexed.
type List []Value

func (List) irValue()   {}
func (List) Kind() Kind { return KindList }

// Object is a map of field names to values. A record is an Object.
// Use SortedKeys() for deterministic iteration.
type Object map[string]Value

func (Object) irValue()   {}
func (Object) Kind() Kind { return KindObject }

// ID identifies one record within a store.
type ID string

// IDField is the reserved field holding a record's identifier.
const IDField = "_id"

// Get returns the value of field, or Null when the field is absent.
func (obj Object) Get(field string) Value {
	if v, ok := obj[field]; ok && v != nil {
		return v
	}
	return Null{}
}

// ID returns the identifier stored in the record's _id field, if any.
func (obj Object) ID() (ID, bool) {
	s, ok := obj[IDField].(String)
	if !ok || s == "" {
		return "", false
	}
	return ID(s), true
}

// Clone returns a deep copy of the object.
func (obj Object) Clone() Object {
	if obj == nil {
		return nil
	}
	out := make(Object, len(obj))
	for k, v := range obj {
		out[k] = Clone(v)
	}
	return out
}

// Merge returns a copy of obj with every top-level field of changes applied.
func (obj Object) Merge(changes Object) Object {
	out := obj.Clone()
	if out == nil {
		out = make(Object, len(changes))
	}
	for k, v := range changes {
		out[k] = Clone(v)
	}
	return out
}

// Keys returns the object's keys in byte order.
func (obj Object) Keys() []string {
	return slices.Sorted(maps.Keys(obj))
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs for some characters.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// Clone returns a deep copy of v. Scalars are returned as is.
func Clone(v Value) Value {
	switch val := v.(type) {
	case nil:
		return Null{}
	case List:
		if val == nil {
			return List(nil)
		}
		out := make(List, len(val))
		for i, elem := range val {
			out[i] = Clone(elem)
		}
		return out
	case Object:
		return val.Clone()
	default:
		return v
	}
}

// IsNull reports whether v is nil or Null.
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}
