package sqlstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/roach88/shelf/internal/schema"
	"github.com/roach88/shelf/internal/testutil"
)

// createTestStore opens a fresh book store in a temporary directory.
func createTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	return openAt(t, filepath.Join(t.TempDir(), "test.db"), testutil.BookSchema(), opts)
}

func openAt(t *testing.T, path string, s *schema.Schema, opts Options) *Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	st, err := Open(context.Background(), path, s, opts)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}
