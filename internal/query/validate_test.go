package query

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
)

func TestValidate_Valid(t *testing.T) {
	s := bookSchema(t)
	tests := []struct {
		name string
		pred Predicate
	}{
		{"nil matches all", nil},
		{"eq", Eq("year", ir.Int(1999))},
		{"eq null", Eq("year", nil)},
		{"neq null", Neq("title", nil)},
		{"range float", Gte("rating", ir.Float(4))},
		{"range time", Lt("published", ir.NewTime(time.Now()))},
		{"in with null", In("year", ir.Int(1), nil)},
		{"empty in", In("year")},
		{"not in", NotIn("title", ir.String("a"))},
		{"bool", Eq("instock", ir.Bool(true))},
		{"id", Eq("_id", ir.String("b1"))},
		{"contains list element", Contains("tags", ir.String("scifi"))},
		{"contains list null", Contains("tags", nil)},
		{"contains object key", Contains("meta", ir.String("k"))},
		{"pointer forms", &Combinator{Kind: KindOr, Left: &Comparison{Field: "year", Op: OpEq, Value: ir.Int(1)}, Right: Eq("year", ir.Int(2))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Validate(tt.pred, s))
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	s := bookSchema(t)
	tests := []struct {
		name  string
		pred  Predicate
		field string
	}{
		{"unknown field", Eq("color", ir.String("red")), "color"},
		{"unindexed field", Eq("notes", ir.String("x")), "notes"},
		{"kind mismatch", Gt("year", ir.String("2000")), "year"},
		{"no int float coercion", Gt("rating", ir.Int(4)), "rating"},
		{"null range operand", Gt("year", nil), "year"},
		{"nan operand", Eq("rating", ir.Float(math.NaN())), "rating"},
		{"in without list", Comparison{Field: "year", Op: OpIn, Value: ir.Int(1)}, "year"},
		{"in element mismatch", In("year", ir.Int(1), ir.String("2")), "year"},
		{"contains on scalar", Contains("title", ir.String("D")), "title"},
		{"contains object with non-key", Contains("meta", ir.Int(1)), "meta"},
		{"unknown operator", Comparison{Field: "year", Op: "like", Value: ir.Int(1)}, "year"},
		{"invalid right subtree", And(Eq("year", ir.Int(1)), Eq("color", ir.Int(1))), "color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.pred, s)
			require.Error(t, err)
			assert.True(t, ir.IsInvalidPredicate(err), "got %v", err)
			var se *ir.StoreError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.field, se.Field)
		})
	}
}

func TestValidate_MissingChild(t *testing.T) {
	s := bookSchema(t)
	err := Validate(Combinator{Kind: KindAnd, Left: Eq("year", ir.Int(1))}, s)
	assert.True(t, ir.IsInvalidPredicate(err))
}

func TestCheck_ReportsEveryProblem(t *testing.T) {
	s := bookSchema(t)
	errs := Check(Or(Eq("color", ir.Int(1)), Gt("year", nil)), s)
	assert.Len(t, errs, 2)
}
