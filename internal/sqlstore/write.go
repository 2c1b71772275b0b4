package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/shelf/internal/dao"
	"github.com/roach88/shelf/internal/ident"
	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/querysql"
)

// Create validates rec, assigns its identifier and inserts the row.
// A primary key conflict is reported as ALREADY_EXISTS.
func (s *Store) Create(ctx context.Context, rec ir.Object) (ir.Object, error) {
	if err := s.schema.Validate(rec); err != nil {
		return nil, err
	}
	stored, id, err := ident.Assign(s.gen, rec)
	if err != nil {
		return nil, err
	}
	if err := s.checkTimes(stored); err != nil {
		return nil, err
	}

	cols, args, err := querysql.Row(s.schema, stored)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", id, err)
	}
	_, err = s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.compiler.Table(), strings.Join(cols, ", "), querysql.Placeholders(len(cols))), args...)
	if err != nil {
		if isConstraint(err) {
			return nil, ir.AlreadyExists(id)
		}
		return nil, fmt.Errorf("create %s: %w", id, err)
	}

	s.logger.Debug("record created", "id", id)
	return stored, nil
}

// isConstraint reports a primary key or unique violation.
func isConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// CreateMany creates each record independently.
func (s *Store) CreateMany(ctx context.Context, recs []ir.Object) dao.BatchResult {
	var res dao.BatchResult
	for _, rec := range recs {
		id, _ := rec.ID()
		created, err := s.Create(ctx, rec)
		if err == nil {
			id, _ = created.ID()
		}
		res.Add(id, created, err)
	}
	return res
}

// Update reads the stored record, merges changes and rewrites the row in one
// transaction.
func (s *Store) Update(ctx context.Context, id ir.ID, changes ir.Object) (ir.Object, error) {
	if err := dao.CheckChanges(s.schema, id, changes); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("update %s: begin: %w", id, err)
	}
	defer tx.Rollback()

	old, err := s.fetch(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	updated := old.Merge(changes)
	if err := s.checkTimes(updated); err != nil {
		return nil, err
	}

	cols, args, err := querysql.Row(s.schema, updated)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	sets := make([]string, len(cols))
	for i, col := range cols {
		sets[i] = col + " = ?"
	}
	args = append(args, string(id))
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		s.compiler.Table(), strings.Join(sets, ", "), querysql.QuoteIdent(ir.IDField)), args...); err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("update %s: commit: %w", id, err)
	}

	s.logger.Debug("record updated", "id", id, "fields", changes.Keys())
	return updated, nil
}

// UpdateMany applies each change set independently, in ascending id order.
func (s *Store) UpdateMany(ctx context.Context, changes map[ir.ID]ir.Object) dao.BatchResult {
	var res dao.BatchResult
	for _, id := range dao.SortedIDs(changes) {
		rec, err := s.Update(ctx, id, changes[id])
		res.Add(id, rec, err)
	}
	return res
}

// Delete removes one row.
func (s *Store) Delete(ctx context.Context, id ir.ID) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE %s = ?",
		s.compiler.Table(), querysql.QuoteIdent(ir.IDField)), string(id))
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n == 0 {
		if s.policy.IgnoreMissingDelete {
			return nil
		}
		return ir.NotFound(id)
	}
	s.logger.Debug("record deleted", "id", id)
	return nil
}

// DeleteMany deletes each id independently.
func (s *Store) DeleteMany(ctx context.Context, ids []ir.ID) dao.BatchResult {
	var res dao.BatchResult
	for _, id := range ids {
		res.Add(id, nil, s.Delete(ctx, id))
	}
	return res
}

// DeleteAll empties the collection table.
func (s *Store) DeleteAll(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM "+s.compiler.Table())
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	s.logger.Debug("collection cleared", "count", n)
	return int(n), nil
}
