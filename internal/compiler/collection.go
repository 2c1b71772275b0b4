package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// CollectionDecl is the raw form of a collection declaration, before its
// field rules are checked. Validate reports every problem in one pass.
type CollectionDecl struct {
	Name   string
	Fields []FieldDecl
	Pos    token.Pos
}

// FieldDecl is one declared field. Index is nil when the declaration does
// not say, in which case scalars are indexed and everything else is not.
type FieldDecl struct {
	Name     string
	Type     string
	Index    *bool
	Optional bool
	Pos      token.Pos
}

// CompileCollection parses a CUE value into a Schema.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the collection struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`collection: Book: fields: { title: {type: "string"} }`)
//	s, err := CompileCollection(v.LookupPath(cue.ParsePath("collection.Book")))
//
// A field may be written in full ({type: "int", index: false, optional: true})
// or as a bare type name (year: "int").
func CompileCollection(v cue.Value) (*schema.Schema, error) {
	decl, err := ParseCollection(v)
	if err != nil {
		return nil, err
	}

	if errs := Validate(decl); len(errs) > 0 {
		first := errs[0]
		return nil, &CompileError{Field: first.Field, Message: first.Message, Pos: first.Pos}
	}

	return decl.Schema()
}

// ParseCollection extracts the raw declaration from a CUE value.
func ParseCollection(v cue.Value) (*CollectionDecl, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	decl := &CollectionDecl{Pos: v.Pos()}

	// Collection name from struct label (the path selector)
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		decl.Name = labels[len(labels)-1].String()
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return decl, nil
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		f, err := parseField(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		decl.Fields = append(decl.Fields, f)
	}

	return decl, nil
}

func parseField(name string, v cue.Value) (FieldDecl, error) {
	f := FieldDecl{Name: name, Pos: v.Pos()}

	// Shorthand: title: "string"
	if typ, err := v.String(); err == nil {
		f.Type = typ
		return f, nil
	}

	if v.IncompleteKind() != cue.StructKind {
		return f, &CompileError{
			Field:   "fields." + name,
			Message: "field must be a type name or a struct with a type",
			Pos:     v.Pos(),
		}
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return f, &CompileError{
			Field:   "fields." + name + ".type",
			Message: "type is required",
			Pos:     v.Pos(),
		}
	}
	typ, err := typeVal.String()
	if err != nil {
		return f, formatCUEError(err)
	}
	f.Type = typ

	if indexVal := v.LookupPath(cue.ParsePath("index")); indexVal.Exists() {
		index, err := indexVal.Bool()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.Index = &index
	}

	if optVal := v.LookupPath(cue.ParsePath("optional")); optVal.Exists() {
		optional, err := optVal.Bool()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.Optional = optional
	}

	return f, nil
}

// Schema builds the Schema for a declaration that passed Validate.
func (d *CollectionDecl) Schema() (*schema.Schema, error) {
	fields := make([]schema.Field, 0, len(d.Fields))
	for _, fd := range d.Fields {
		kind, err := ir.ParseKind(fd.Type)
		if err != nil {
			return nil, &CompileError{Field: "fields." + fd.Name + ".type", Message: err.Error(), Pos: fd.Pos}
		}
		indexed := kind.Scalar()
		if fd.Index != nil {
			indexed = *fd.Index
		}
		fields = append(fields, schema.Field{
			Name:     fd.Name,
			Kind:     kind,
			Indexed:  indexed,
			Optional: fd.Optional,
		})
	}

	s, err := schema.New(d.Name, fields...)
	if err != nil {
		return nil, &CompileError{Field: "collection", Message: err.Error(), Pos: d.Pos}
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
