package querysql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/testutil"
)

func TestDDL(t *testing.T) {
	stmts, err := DDL(testutil.BookSchema())
	require.NoError(t, err)
	require.Len(t, stmts, 6)

	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "Book" (
    "_id" TEXT PRIMARY KEY,
    "title" TEXT,
    "year" INTEGER,
    "rating" REAL,
    "published" INTEGER,
    "instock" INTEGER,
    "_doc" TEXT NOT NULL
)`, stmts[0])
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "idx_Book_title" ON "Book"("title")`, stmts[1])
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "idx_Book_instock" ON "Book"("instock")`, stmts[5])
}

func TestRow(t *testing.T) {
	t0 := time.Date(2001, 2, 3, 0, 0, 0, 0, time.UTC)
	rec := testutil.With(testutil.Book("b1", "Dune", 1965), "published", ir.NewTime(t0))

	cols, args, err := Row(testutil.BookSchema(), rec)
	require.NoError(t, err)

	assert.Equal(t, []string{`"_id"`, `"title"`, `"year"`, `"rating"`, `"published"`, `"instock"`, `"_doc"`}, cols)
	assert.Equal(t, []any{"b1", "Dune", int64(1965), nil, t0.UnixNano(), nil}, args[:6])
	assert.JSONEq(t, `{"_id":"b1","title":"Dune","year":1965,"published":"2001-02-03T00:00:00Z"}`, args[6].(string))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"plain"`, QuoteIdent("plain"))
	assert.Equal(t, `"we""ird"`, QuoteIdent(`we"ird`))
}

func TestToParam(t *testing.T) {
	_, err := ToParam(ir.List{})
	assert.Error(t, err)
	_, err = ToParam(ir.Object{})
	assert.Error(t, err)

	p, err := ToParam(ir.Bool(false))
	require.NoError(t, err)
	assert.Equal(t, int64(0), p)
}
