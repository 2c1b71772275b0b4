package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

func bookSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New("Book",
		schema.Field{Name: "title", Kind: ir.KindString, Indexed: true},
		schema.Field{Name: "year", Kind: ir.KindInt, Indexed: true},
		schema.Field{Name: "rating", Kind: ir.KindFloat, Indexed: true},
		schema.Field{Name: "published", Kind: ir.KindTime, Indexed: true},
		schema.Field{Name: "instock", Kind: ir.KindBool, Indexed: true},
		schema.Field{Name: "notes", Kind: ir.KindString, Optional: true},
		schema.Field{Name: "tags", Kind: ir.KindList},
		schema.Field{Name: "meta", Kind: ir.KindObject, Optional: true},
	)
	require.NoError(t, err)
	return s
}
