// Package filestore keeps a collection as a directory of YAML files, one
// file per record, named after the record's escaped identifier.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/kvdao"
	"github.com/roach88/shelf/internal/schema"
)

const (
	extension = ".yaml"
	// url.PathEscape always escapes '#', so no record file starts with it.
	tmpPrefix = "#tmp-"
)

// Records implements kvdao.Records over <root>/<collection>/.
//
// Writes go to a temporary file first and are then renamed (replace) or
// hard-linked (insert) into place, so a reader never sees a half-written
// record and two inserts of the same id cannot both succeed.
type Records struct {
	mu     sync.Mutex
	dir    string
	schema *schema.Schema
}

var _ kvdao.Records = (*Records)(nil)

// Open returns a Dao over the record files of s under root, creating the
// collection directory when needed.
func Open(ctx context.Context, root string, s *schema.Schema, opts kvdao.Options) (*kvdao.Store, error) {
	recs, err := NewRecords(root, s)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "file store opened", "collection", s.Name(), "dir", recs.dir)
	return kvdao.New(s, recs, opts), nil
}

// NewRecords prepares the collection directory.
func NewRecords(root string, s *schema.Schema) (*Records, error) {
	if root == "" {
		return nil, fmt.Errorf("filestore: root directory is required")
	}
	dir := filepath.Join(root, s.Name())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create collection directory: %w", err)
	}
	return &Records{dir: dir, schema: s}, nil
}

// Dir returns the collection directory.
func (r *Records) Dir() string { return r.dir }

// Path returns the file that holds id.
func (r *Records) Path(id ir.ID) string {
	return filepath.Join(r.dir, url.PathEscape(string(id))+extension)
}

// Get reads and decodes one record file.
func (r *Records) Get(ctx context.Context, id ir.ID) (ir.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.read(r.Path(id), id)
}

func (r *Records) read(path string, id ir.ID) (ir.Object, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ir.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	rec, err := decodeRecord(r.schema, data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if got, _ := rec.ID(); got != id {
		return nil, ir.InvalidRecord(ir.IDField, "file %s holds record %q", filepath.Base(path), got).WithID(id)
	}
	return rec, nil
}

// Insert writes a new record file, failing if one already exists.
func (r *Records) Insert(ctx context.Context, id ir.ID, rec ir.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tmp, err := r.writeTemp(rec)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, r.Path(id)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ir.AlreadyExists(id)
		}
		return fmt.Errorf("failed to write record %s: %w", id, err)
	}
	return nil
}

// Replace overwrites an existing record file.
func (r *Records) Replace(ctx context.Context, id ir.ID, rec ir.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	path := r.Path(id)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ir.NotFound(id)
	}
	tmp, err := r.writeTemp(rec)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write record %s: %w", id, err)
	}
	return nil
}

func (r *Records) writeTemp(rec ir.Object) (string, error) {
	data, err := encodeRecord(r.schema, rec)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(r.dir, tmpPrefix+"*"+extension)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return f.Name(), nil
}

// Remove deletes one record file.
func (r *Records) Remove(ctx context.Context, id ir.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.Path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ir.NotFound(id)
	}
	if err != nil {
		return fmt.Errorf("failed to remove record %s: %w", id, err)
	}
	return nil
}

// All reads every record file in the directory.
func (r *Records) All(ctx context.Context) ([]ir.Object, error) {
	names, err := r.list()
	if err != nil {
		return nil, err
	}
	out := make([]ir.Object, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		escaped := strings.TrimSuffix(name, extension)
		id, err := url.PathUnescape(escaped)
		if err != nil {
			return nil, fmt.Errorf("unexpected file %s in %s", name, r.dir)
		}
		rec, err := r.read(filepath.Join(r.dir, name), ir.ID(id))
		if ir.IsNotFound(err) {
			continue // removed since listing
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Clear removes every record file.
func (r *Records) Clear(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.list()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, name := range names {
		err := os.Remove(filepath.Join(r.dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return n, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		n++
	}
	return n, nil
}

// list returns the record file names, skipping temporaries.
func (r *Records) list() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.dir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, extension) || strings.HasPrefix(name, tmpPrefix) {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
