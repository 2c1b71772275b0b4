package compiler

import (
	"os"
	"path/filepath"
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

const bookCUE = `
package books

collection: Book: {
	fields: {
		title:  {type: "string"}
		year:   "int"
		rating: {type: "float", index: false}
		tags:   {type: "list"}
		isbn:   {type: "string", index: false, optional: true}
	}
}
`

func TestCompileCollectionBasic(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(bookCUE)
	require.NoError(t, v.Err())

	s, err := CompileCollection(v.LookupPath(cue.ParsePath("collection.Book")))
	require.NoError(t, err)

	assert.Equal(t, "Book", s.Name())
	assert.Equal(t, []string{"_id", "title", "year"}, s.IndexedFields())

	tags, ok := s.Field("tags")
	require.True(t, ok)
	assert.Equal(t, schema.Field{Name: "tags", Kind: ir.KindList}, tags, "non-scalars default to unindexed")

	isbn, ok := s.Field("isbn")
	require.True(t, ok)
	assert.True(t, isbn.Optional)
	assert.False(t, isbn.Indexed)
}

func TestCompileCollectionReportsPosition(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`
collection: Bad: {
	fields: {
		tags: {type: "list", index: true}
	}
}
`, cue.Filename("bad.cue"))
	require.NoError(t, v.Err())

	_, err := CompileCollection(v.LookupPath(cue.ParsePath("collection.Bad")))
	require.Error(t, err)

	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "fields.tags.index", ce.Field)
	assert.Contains(t, err.Error(), "bad.cue:")
	assert.Contains(t, err.Error(), "cannot be indexed")
}

func TestCompileCollectionMissingType(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`collection: Bad: fields: title: {index: true}`)
	require.NoError(t, v.Err())

	_, err := CompileCollection(v.LookupPath(cue.ParsePath("collection.Bad")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type is required")
}

func TestLoadCollections(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "book.cue"), []byte(bookCUE), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "author.cue"), []byte(`
package books

collection: Author: fields: {
	name: "string"
	born: "timestamp"
}
`), 0o644))

	schemas, errs := LoadCollections(dir)
	require.Empty(t, errs)
	require.Len(t, schemas, 2)
	assert.Equal(t, "Author", schemas[0].Name())
	assert.Equal(t, "Book", schemas[1].Name())

	s, err := LoadCollection(filepath.Join(dir, "book.cue"), "Book")
	require.NoError(t, err)
	assert.Equal(t, "Book", s.Name())

	_, err = LoadCollection(dir, "Missing")
	assert.Error(t, err)
}

func TestLoadCollectionsMissingDir(t *testing.T) {
	_, errs := LoadCollections(filepath.Join(t.TempDir(), "nope"))
	require.Len(t, errs, 1)
}
