// Package dao defines the operation set every shelf backend implements,
// so the in-memory engine, the persistent stores and their decorators can be
// substituted for one another.
package dao

import (
	"context"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/query"
	"github.com/roach88/shelf/internal/schema"
)

// Dao is one collection's CRUD + query surface.
//
// Semantics shared by every implementation:
//   - Create takes the identifier from the record's _id field when present
//     and otherwise asks the store's ident.Generator; ALREADY_EXISTS on
//     collision
//   - Fetch and Update fail with NOT_FOUND for a missing id; Delete does too
//     unless Policy.IgnoreMissingDelete is set
//   - FetchMany omits missing ids unless Policy.StrictFetchMany is set
//   - Update merges top-level fields (a nested object is replaced wholesale)
//   - Batch operations report one Item per input, in input order, and are
//     not atomic as a whole
//   - fields selects a projection (nil = all fields; _id is always kept);
//     unknown names fail with INVALID_FIELD_PROJECTION
//   - Records returned are copies the caller may modify
//   - Every failure is, or wraps, an *ir.StoreError
type Dao interface {
	Schema() *schema.Schema

	Exists(ctx context.Context, id ir.ID) (bool, error)
	ExistsMany(ctx context.Context, ids []ir.ID) (map[ir.ID]bool, error)
	Count(ctx context.Context, where query.Predicate) (int, error)

	Create(ctx context.Context, rec ir.Object) (ir.Object, error)
	CreateMany(ctx context.Context, recs []ir.Object) BatchResult

	Fetch(ctx context.Context, id ir.ID, fields []string) (ir.Object, error)
	FetchMany(ctx context.Context, ids []ir.ID, fields []string) (map[ir.ID]ir.Object, error)
	FetchAll(ctx context.Context, fields []string) ([]ir.Object, error)

	Update(ctx context.Context, id ir.ID, changes ir.Object) (ir.Object, error)
	UpdateMany(ctx context.Context, changes map[ir.ID]ir.Object) BatchResult

	Delete(ctx context.Context, id ir.ID) error
	DeleteMany(ctx context.Context, ids []ir.ID) BatchResult
	DeleteAll(ctx context.Context) (int, error)

	Query(ctx context.Context, sel query.Select) ([]ir.Object, error)
}

// Closer is implemented by backends holding external resources.
type Closer interface {
	Close() error
}

// Policy holds the documented choices a caller may flip.
type Policy struct {
	// StrictFetchMany makes FetchMany fail with NOT_FOUND when any requested
	// id is missing, instead of omitting it.
	StrictFetchMany bool

	// IgnoreMissingDelete makes Delete of a missing id a no-op.
	IgnoreMissingDelete bool
}
