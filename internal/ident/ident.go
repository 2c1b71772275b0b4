// Package ident provides the identifier strategies a store uses when a
// record is created without an _id.
package ident

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/roach88/shelf/internal/ir"
)

// Generator assigns an identifier to a new record.
// The record is passed without an _id; generators must not modify it.
type Generator interface {
	Generate(rec ir.Object) (ir.ID, error)
}

// ErrIDRequired is returned by SuppliedGenerator.
var ErrIDRequired = ir.InvalidRecord(ir.IDField, "record has no identifier and none can be generated")

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds a timestamp in the most significant bits, so identifiers
// sort by creation time and the default _id order is insertion order.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
//
// Format: "0190b1a4-7c3e-7d2a-9f10-5b7c2e8d4a61" (36 characters)
func (UUIDv7Generator) Generate(ir.Object) (ir.ID, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUIDv7: %w", err)
	}
	return ir.ID(u.String()), nil
}

// ContentGenerator derives the identifier from the record's fields
// (ir.ContentID), so identical records collide with ALREADY_EXISTS.
type ContentGenerator struct{}

// Generate hashes the record.
func (ContentGenerator) Generate(rec ir.Object) (ir.ID, error) {
	return ir.ContentID(rec)
}

// SuppliedGenerator never generates: callers must supply _id themselves.
type SuppliedGenerator struct{}

// Generate always fails with INVALID_RECORD.
func (SuppliedGenerator) Generate(ir.Object) (ir.ID, error) {
	return "", ErrIDRequired
}

// FixedGenerator returns predetermined identifiers for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []ir.ID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
//
// Example:
//
//	gen := NewFixedGenerator("a", "b")
//	gen.Generate(rec) // "a"
//	gen.Generate(rec) // "b"
//	gen.Generate(rec) // error: all identifiers exhausted
func NewFixedGenerator(ids ...ir.ID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined identifier.
func (g *FixedGenerator) Generate(ir.Object) (ir.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		return "", fmt.Errorf("FixedGenerator: all %d identifiers exhausted", len(g.ids))
	}
	id := g.ids[g.idx]
	g.idx++
	return id, nil
}

// SequenceGenerator returns prefix-000001, prefix-000002, ...
//
// Identifiers sort in creation order, which keeps golden files and test
// expectations stable.
//
// Thread-safety: all methods are safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSequenceGenerator creates a generator starting at 1.
func NewSequenceGenerator(prefix string) *SequenceGenerator {
	return &SequenceGenerator{prefix: prefix}
}

// Generate returns the next identifier in sequence.
func (g *SequenceGenerator) Generate(ir.Object) (ir.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return ir.ID(fmt.Sprintf("%s-%06d", g.prefix, g.seq)), nil
}

// Reset restarts the sequence at 1.
func (g *SequenceGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}

// Assign returns a copy of rec carrying its identifier: the record's own
// _id when present, otherwise one from gen. rec must already be valid.
func Assign(gen Generator, rec ir.Object) (ir.Object, ir.ID, error) {
	out := rec.Clone()
	if out == nil {
		out = ir.Object{}
	}
	if id, ok := out.ID(); ok {
		return out, id, nil
	}

	delete(out, ir.IDField)
	id, err := gen.Generate(out)
	if err != nil {
		return nil, "", err
	}
	if id == "" {
		return nil, "", ir.InvalidRecord(ir.IDField, "generator returned an empty identifier")
	}
	out[ir.IDField] = ir.String(id)
	return out, id, nil
}

// Strategy names accepted by Parse.
const (
	StrategyUUID     = "uuid"
	StrategyContent  = "content"
	StrategySupplied = "supplied"
)

// Parse maps a configured strategy name to a Generator.
// An empty name selects UUIDv7.
func Parse(name string) (Generator, error) {
	switch name {
	case "", StrategyUUID:
		return UUIDv7Generator{}, nil
	case StrategyContent:
		return ContentGenerator{}, nil
	case StrategySupplied:
		return SuppliedGenerator{}, nil
	default:
		return nil, fmt.Errorf("unknown id strategy %q (want %s, %s or %s)", name, StrategyUUID, StrategyContent, StrategySupplied)
	}
}
