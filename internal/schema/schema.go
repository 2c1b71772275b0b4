// Package schema declares which fields a collection's records carry, their
// kinds, and which of them are indexed.
package schema

import (
	"fmt"
	"math"
	"regexp"

	"github.com/roach88/shelf/internal/ir"
)

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Field declares one field of a collection.
type Field struct {
	Name     string
	Kind     ir.Kind
	Indexed  bool
	Optional bool
}

// Schema is an immutable collection declaration.
// The reserved _id field is always present, indexed, and comes first.
type Schema struct {
	name   string
	fields []Field
	byName map[string]int
}

// IDFieldDecl is the declaration every schema starts with.
var IDFieldDecl = Field{Name: ir.IDField, Kind: ir.KindString, Indexed: true}

// New validates the field declarations and builds a Schema.
//
// Rules:
//   - name must be non-empty
//   - field names are identifiers, unique, and may not start with "_"
//   - only scalar fields (bool, int, float, string, timestamp) can be indexed
func New(name string, fields ...Field) (*Schema, error) {
	if name == "" {
		return nil, fmt.Errorf("schema: collection name is required")
	}

	s := &Schema{
		name:   name,
		fields: make([]Field, 0, len(fields)+1),
		byName: make(map[string]int, len(fields)+1),
	}
	s.fields = append(s.fields, IDFieldDecl)
	s.byName[ir.IDField] = 0

	for _, f := range fields {
		if !fieldNamePattern.MatchString(f.Name) {
			return nil, fmt.Errorf("schema %s: invalid field name %q", name, f.Name)
		}
		if f.Name[0] == '_' {
			return nil, fmt.Errorf("schema %s: field name %q is reserved (leading underscore)", name, f.Name)
		}
		if _, dup := s.byName[f.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate field %q", name, f.Name)
		}
		if f.Kind == ir.KindNull {
			return nil, fmt.Errorf("schema %s: field %q has no type", name, f.Name)
		}
		if f.Indexed && !f.Kind.Scalar() {
			return nil, fmt.Errorf("schema %s: field %q of type %s cannot be indexed", name, f.Name, f.Kind)
		}
		s.byName[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}

	return s, nil
}

// MustNew is like New but panics on error. Intended for tests and fixtures.
func MustNew(name string, fields ...Field) *Schema {
	s, err := New(name, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the collection name.
func (s *Schema) Name() string { return s.name }

// Fields returns all declarations in declaration order, _id first.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a declaration by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// IndexedFields returns the names of indexed fields, _id first.
func (s *Schema) IndexedFields() []string {
	var out []string
	for _, f := range s.fields {
		if f.Indexed {
			out = append(out, f.Name)
		}
	}
	return out
}

// Validate checks a complete record: every declared non-optional field is
// present, no undeclared field appears, and each value matches its kind.
// Null is accepted for any field.
func (s *Schema) Validate(rec ir.Object) error {
	for _, f := range s.fields {
		if _, ok := rec[f.Name]; !ok && !f.Optional && f.Name != ir.IDField {
			return ir.InvalidRecord(f.Name, "missing required field")
		}
	}
	return s.ValidatePartial(rec)
}

// ValidatePartial checks only the fields present in values.
// Used for update payloads, which may omit any field.
func (s *Schema) ValidatePartial(values ir.Object) error {
	for _, name := range values.Keys() {
		f, ok := s.Field(name)
		if !ok {
			return ir.InvalidRecord(name, "unknown field")
		}
		if err := checkKind(f, values[name]); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(f Field, v ir.Value) error {
	if ir.IsNull(v) {
		if f.Name == ir.IDField {
			return ir.InvalidRecord(f.Name, "identifier cannot be null")
		}
		return nil
	}
	if v.Kind() != f.Kind {
		return ir.InvalidRecord(f.Name, "expected %s, got %s", f.Kind, v.Kind())
	}
	if fl, ok := v.(ir.Float); ok && math.IsNaN(float64(fl)) {
		return ir.InvalidRecord(f.Name, "NaN is not a storable value")
	}
	if f.Name == ir.IDField && v.(ir.String) == "" {
		return ir.InvalidRecord(f.Name, "identifier cannot be empty")
	}
	return nil
}

// Projection resolves a requested field list.
// An empty list means all fields and yields nil. Otherwise the result always
// contains _id, preserves request order, and drops duplicates.
func (s *Schema) Projection(fields []string) ([]string, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(fields)+1)
	seen := map[string]bool{ir.IDField: true}
	out = append(out, ir.IDField)
	for _, name := range fields {
		if _, ok := s.byName[name]; !ok {
			return nil, ir.InvalidProjection(name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

// Project returns a deep copy of rec restricted to names. A nil names list
// copies every field. Declared fields absent from rec are left absent.
func Project(rec ir.Object, names []string) ir.Object {
	if names == nil {
		return rec.Clone()
	}
	out := make(ir.Object, len(names))
	for _, name := range names {
		if v, ok := rec[name]; ok {
			out[name] = ir.Clone(v)
		}
	}
	return out
}
