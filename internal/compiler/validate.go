package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/shelf/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrCollectionName    = "E101" // collection name is required
	ErrCollectionNoField = "E102" // at least one field required
	ErrInvalidFieldType  = "E104" // unknown type name
	ErrDuplicateName     = "E105" // duplicate field name
	ErrInvalidFieldName  = "E106" // not an identifier
	ErrReservedFieldName = "E107" // leading underscore
	ErrIndexNonScalar    = "E108" // list/object fields cannot be indexed
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidationError represents a declaration validation error.
type ValidationError struct {
	Field   string    `json:"field"`
	Message string    `json:"message"`
	Code    string    `json:"code"`
	Line    int       `json:"line,omitempty"`
	Pos     token.Pos `json:"-"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a collection declaration against the field rules.
// Returns all errors found (does not fail-fast).
func Validate(decl *CollectionDecl) []ValidationError {
	var errs []ValidationError
	add := func(field, code string, pos token.Pos, format string, args ...any) {
		ve := ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
		if pos.IsValid() {
			ve.Line = pos.Line()
		}
		errs = append(errs, ve)
	}

	if strings.TrimSpace(decl.Name) == "" {
		add("collection", ErrCollectionName, decl.Pos, "collection name is required")
	}
	if len(decl.Fields) == 0 {
		add("fields", ErrCollectionNoField, decl.Pos, "at least one field is required")
	}

	seen := make(map[string]bool)
	for _, f := range decl.Fields {
		path := "fields." + f.Name

		if !identPattern.MatchString(f.Name) {
			add(path, ErrInvalidFieldName, f.Pos, "field name %q is not an identifier", f.Name)
		} else if strings.HasPrefix(f.Name, "_") {
			add(path, ErrReservedFieldName, f.Pos, "field name %q is reserved (leading underscore)", f.Name)
		}

		if seen[f.Name] {
			add(path, ErrDuplicateName, f.Pos, "duplicate field name %q", f.Name)
		}
		seen[f.Name] = true

		kind, err := ir.ParseKind(f.Type)
		if err != nil {
			add(path+".type", ErrInvalidFieldType, f.Pos, "invalid type %q for field %q", f.Type, f.Name)
			continue
		}
		if f.Index != nil && *f.Index && !kind.Scalar() {
			add(path+".index", ErrIndexNonScalar, f.Pos, "field %q of type %s cannot be indexed", f.Name, kind)
		}
	}

	return errs
}
