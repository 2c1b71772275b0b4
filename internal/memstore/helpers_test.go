package memstore

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
	"github.com/roach88/shelf/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newBookStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return New(testutil.BookSchema(), opts)
}

func seedBooks(t *testing.T, s *Store) {
	t.Helper()
	res := s.CreateMany(context.Background(), testutil.SampleBooks())
	require.NoError(t, res.Err())
}

func yearSchema() *schema.Schema {
	return schema.MustNew("Event", schema.Field{Name: "year", Kind: ir.KindInt, Indexed: true})
}

func idsOf(recs []ir.Object) []ir.ID {
	out := make([]ir.ID, len(recs))
	for i, rec := range recs {
		out[i], _ = rec.ID()
	}
	return out
}
