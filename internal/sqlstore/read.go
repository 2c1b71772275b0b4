package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/querysql"
	"github.com/roach88/shelf/internal/schema"
)

// Exists reports whether id has a row.
func (s *Store) Exists(ctx context.Context, id ir.ID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ?",
		s.compiler.Table(), querysql.QuoteIdent(ir.IDField)), string(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	return true, nil
}

// ExistsMany reports liveness for each id.
func (s *Store) ExistsMany(ctx context.Context, ids []ir.ID) (map[ir.ID]bool, error) {
	out := make(map[ir.ID]bool, len(ids))
	for _, id := range ids {
		ok, err := s.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = ok
	}
	return out, nil
}

// Count returns the number of rows matching where (nil = all).
func (s *Store) Count(ctx context.Context, where query.Predicate) (int, error) {
	stmt, params, err := s.compiler.CompileCount(where)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, stmt, params...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Fetch returns one record, projected.
func (s *Store) Fetch(ctx context.Context, id ir.ID, fields []string) (ir.Object, error) {
	names, err := s.schema.Projection(fields)
	if err != nil {
		return nil, err
	}
	rec, err := s.fetch(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return schema.Project(rec, names), nil
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) fetch(ctx context.Context, q rowQuerier, id ir.ID) (ir.Object, error) {
	var doc string
	err := q.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		querysql.QuoteIdent(querysql.DocColumn), s.compiler.Table(), querysql.QuoteIdent(ir.IDField)), string(id)).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ir.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", id, err)
	}
	return s.unmarshalDoc(doc)
}

// FetchMany returns the requested records keyed by id. Missing ids are
// omitted unless the store runs with Policy.StrictFetchMany.
func (s *Store) FetchMany(ctx context.Context, ids []ir.ID, fields []string) (map[ir.ID]ir.Object, error) {
	names, err := s.schema.Projection(fields)
	if err != nil {
		return nil, err
	}

	out := make(map[ir.ID]ir.Object, len(ids))
	var missing []ir.ID
	for _, id := range ids {
		rec, err := s.fetch(ctx, s.db, id)
		if ir.IsNotFound(err) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = schema.Project(rec, names)
	}
	if s.policy.StrictFetchMany && len(missing) > 0 {
		return nil, dao.MissingError(missing)
	}
	return out, nil
}

// FetchAll returns every record ordered by _id.
func (s *Store) FetchAll(ctx context.Context, fields []string) ([]ir.Object, error) {
	return s.Query(ctx, query.Select{Fields: fields})
}

// Query compiles sel to SQL, then projects each row.
// Results are ordered deterministically: sort keys, then _id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) Query(ctx context.Context, sel query.Select) ([]ir.Object, error) {
	stmt, params, err := s.compiler.Compile(sel)
	if err != nil {
		return nil, err
	}
	names, err := s.schema.Projection(sel.Fields)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, stmt, params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	out := []ir.Object{}
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec, err := s.unmarshalDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, schema.Project(rec, names))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}
