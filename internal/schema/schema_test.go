package schema

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
)

func bookSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New("Book",
		Field{Name: "title", Kind: ir.KindString, Indexed: true},
		Field{Name: "year", Kind: ir.KindInt, Indexed: true},
		Field{Name: "rating", Kind: ir.KindFloat},
		Field{Name: "tags", Kind: ir.KindList},
		Field{Name: "isbn", Kind: ir.KindString, Optional: true},
	)
	require.NoError(t, err)
	return s
}

func TestNewPrependsIDField(t *testing.T) {
	s := bookSchema(t)

	fields := s.Fields()
	require.Len(t, fields, 6)
	assert.Equal(t, IDFieldDecl, fields[0])
	assert.Equal(t, []string{"_id", "title", "year"}, s.IndexedFields())
	assert.Equal(t, "Book", s.Name())
}

func TestNewRejectsBadDeclarations(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"reserved prefix", []Field{{Name: "_rev", Kind: ir.KindInt}}},
		{"id redeclared", []Field{{Name: "_id", Kind: ir.KindString}}},
		{"bad identifier", []Field{{Name: "first-name", Kind: ir.KindString}}},
		{"leading digit", []Field{{Name: "1st", Kind: ir.KindString}}},
		{"duplicate", []Field{{Name: "a", Kind: ir.KindInt}, {Name: "a", Kind: ir.KindString}}},
		{"indexed list", []Field{{Name: "tags", Kind: ir.KindList, Indexed: true}}},
		{"indexed object", []Field{{Name: "meta", Kind: ir.KindObject, Indexed: true}}},
		{"untyped", []Field{{Name: "x"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("Book", tt.fields...)
			assert.Error(t, err)
		})
	}

	_, err := New("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := bookSchema(t)
	valid := ir.Object{
		"title":  ir.String("Dune"),
		"year":   ir.Int(1965),
		"rating": ir.Float(4.5),
		"tags":   ir.List{ir.String("scifi")},
	}

	require.NoError(t, s.Validate(valid))
	require.NoError(t, s.Validate(valid.Merge(ir.Object{"isbn": ir.String("x")})))
	require.NoError(t, s.Validate(valid.Merge(ir.Object{"year": ir.Null{}})), "null is allowed anywhere")

	tests := []struct {
		name  string
		rec   ir.Object
		field string
	}{
		{"missing required", ir.Object{"title": ir.String("Dune")}, "year"},
		{"unknown field", valid.Merge(ir.Object{"color": ir.String("red")}), "color"},
		{"kind mismatch", valid.Merge(ir.Object{"year": ir.String("1965")}), "year"},
		{"no int to float coercion", valid.Merge(ir.Object{"rating": ir.Int(4)}), "rating"},
		{"nan", valid.Merge(ir.Object{"rating": ir.Float(math.NaN())}), "rating"},
		{"empty id", valid.Merge(ir.Object{"_id": ir.String("")}), "_id"},
		{"null id", valid.Merge(ir.Object{"_id": ir.Null{}}), "_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.rec)
			require.Error(t, err)
			assert.True(t, ir.IsInvalidRecord(err))
			var se *ir.StoreError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tt.field, se.Field)
		})
	}
}

func TestValidatePartialAllowsOmissions(t *testing.T) {
	s := bookSchema(t)
	assert.NoError(t, s.ValidatePartial(ir.Object{"year": ir.Int(2001)}))
	assert.Error(t, s.ValidatePartial(ir.Object{"year": ir.Bool(true)}))
}

func TestProjection(t *testing.T) {
	s := bookSchema(t)

	names, err := s.Projection(nil)
	require.NoError(t, err)
	assert.Nil(t, names)

	names, err = s.Projection([]string{"year", "title", "year"})
	require.NoError(t, err)
	assert.Equal(t, []string{"_id", "year", "title"}, names)

	_, err = s.Projection([]string{"title", "color"})
	assert.True(t, ir.IsInvalidFieldProjection(err))
}

func TestProject(t *testing.T) {
	rec := ir.Object{"_id": ir.String("b1"), "title": ir.String("Dune"), "tags": ir.List{ir.String("a")}}

	got := Project(rec, []string{"_id", "tags", "isbn"})
	assert.Equal(t, ir.Object{"_id": ir.String("b1"), "tags": ir.List{ir.String("a")}}, got)

	got["tags"].(ir.List)[0] = ir.String("b")
	assert.Equal(t, ir.String("a"), rec["tags"].(ir.List)[0], "projection must deep copy")

	assert.Equal(t, rec, Project(rec, nil))
}

func TestDecodeRestoresKinds(t *testing.T) {
	s, err := New("Event",
		Field{Name: "at", Kind: ir.KindTime, Indexed: true},
		Field{Name: "score", Kind: ir.KindFloat},
		Field{Name: "count", Kind: ir.KindInt},
	)
	require.NoError(t, err)

	at := time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)
	rec, err := s.Decode(map[string]any{
		"_id":   "e1",
		"at":    at.Format(time.RFC3339Nano),
		"score": 3,
		"count": float64(7),
	})
	require.NoError(t, err)

	assert.True(t, ir.Equal(ir.NewTime(at), rec["at"]))
	assert.Equal(t, ir.Float(3), rec["score"])
	assert.Equal(t, ir.Int(7), rec["count"])

	_, err = s.Decode(map[string]any{"count": 1.5})
	assert.True(t, ir.IsInvalidRecord(err))

	_, err = s.Decode(map[string]any{"nope": 1})
	assert.True(t, ir.IsInvalidRecord(err))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s, err := New("Event",
		Field{Name: "at", Kind: ir.KindTime},
		Field{Name: "meta", Kind: ir.KindObject},
	)
	require.NoError(t, err)

	rec := ir.Object{
		"_id":  ir.String("e1"),
		"at":   ir.NewTime(time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC)),
		"meta": ir.Object{"k": ir.Int(1)},
	}
	back, err := s.Decode(s.Encode(rec))
	require.NoError(t, err)
	assert.True(t, ir.Equal(rec, back))
}
