package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ident"
	"github.com/roach88/shelf/internal/querysql"
	"github.com/roach88/shelf/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - shelf_collections registry
const currentSchemaVersion = 1

// Options configures a Store.
type Options struct {
	// Generator assigns ids to records created without one.
	// Defaults to ident.UUIDv7Generator.
	Generator ident.Generator

	// Policy selects the fetch-many and missing-delete behaviour.
	Policy dao.Policy

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Store keeps one collection in a SQLite database.
type Store struct {
	db       *sql.DB
	schema   *schema.Schema
	compiler *querysql.SQLCompiler
	gen      ident.Generator
	policy   dao.Policy
	logger   *slog.Logger
}

var (
	_ dao.Dao    = (*Store)(nil)
	_ dao.Closer = (*Store)(nil)
)

// Open creates or opens a SQLite database at the given path and makes sure
// the collection table for s exists.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(ctx context.Context, path string, s *schema.Schema, opts Options) (*Store, error) {
	if opts.Generator == nil {
		opts.Generator = ident.UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// Open database (creates file if doesn't exist)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection works
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1) // Single writer to avoid SQLITE_BUSY errors
	db.SetMaxIdleConns(1) // Keep one connection ready

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	if err := ensureCollection(ctx, db, s); err != nil {
		db.Close()
		return nil, err
	}

	st := &Store{
		db:       db,
		schema:   s,
		compiler: querysql.NewSQLCompiler(s),
		gen:      opts.Generator,
		policy:   opts.Policy,
		logger:   opts.Logger.With("collection", s.Name(), "backend", "sqlite"),
	}
	st.logger.Info("store opened", "path", path)
	return st, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Info("store closed")
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Schema returns the collection schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates the registry table and records the schema version.
// This function is idempotent.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// layout describes the fields a collection table was created for.
func layout(s *schema.Schema) (string, error) {
	type field struct {
		Name     string `json:"name"`
		Kind     string `json:"kind"`
		Indexed  bool   `json:"indexed,omitempty"`
		Optional bool   `json:"optional,omitempty"`
	}
	fields := make([]field, 0, len(s.Fields()))
	for _, f := range s.Fields() {
		fields = append(fields, field{Name: f.Name, Kind: f.Kind.String(), Indexed: f.Indexed, Optional: f.Optional})
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ensureCollection creates the collection table and its indexes, or checks
// that an existing table was created for the same layout.
func ensureCollection(ctx context.Context, db *sql.DB, s *schema.Schema) error {
	want, err := layout(s)
	if err != nil {
		return fmt.Errorf("collection %s: %w", s.Name(), err)
	}

	var have string
	err = db.QueryRowContext(ctx, `SELECT layout FROM shelf_collections WHERE name = ?`, s.Name()).Scan(&have)
	switch {
	case err == nil:
		if have != want {
			return fmt.Errorf("collection %s: stored layout %s does not match schema %s", s.Name(), have, want)
		}
		return nil
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("collection %s: read registry: %w", s.Name(), err)
	}

	stmts, err := querysql.DDL(s)
	if err != nil {
		return fmt.Errorf("collection %s: %w", s.Name(), err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("collection %s: begin: %w", s.Name(), err)
	}
	defer tx.Rollback()

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("collection %s: %w", s.Name(), err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO shelf_collections (name, layout, created_at) VALUES (?, ?, ?)`,
		s.Name(), want, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("collection %s: register: %w", s.Name(), err)
	}
	return tx.Commit()
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
