// Package testutil holds fixtures shared by the store tests: a book
// collection schema, sample records, a deterministic clock and a seeded
// generator of random records and predicates.
package testutil

import (
	"time"

	"github.com/roach88/shelf/internal/ir"
	"github.com/roach88/shelf/internal/schema"
)

// BookSchema is the collection every backend test runs against.
//
// Indexed: title, year, rating, published, instock (plus _id).
// Unindexed: notes (optional string), tags (list), meta (optional object).
func BookSchema() *schema.Schema {
	return schema.MustNew("Book",
		schema.Field{Name: "title", Kind: ir.KindString, Indexed: true},
		schema.Field{Name: "year", Kind: ir.KindInt, Indexed: true},
		schema.Field{Name: "rating", Kind: ir.KindFloat, Indexed: true, Optional: true},
		schema.Field{Name: "published", Kind: ir.KindTime, Indexed: true, Optional: true},
		schema.Field{Name: "instock", Kind: ir.KindBool, Indexed: true, Optional: true},
		schema.Field{Name: "notes", Kind: ir.KindString, Optional: true},
		schema.Field{Name: "tags", Kind: ir.KindList, Optional: true},
		schema.Field{Name: "meta", Kind: ir.KindObject, Optional: true},
	)
}

// Book builds a book record with the given id, title and year.
func Book(id, title string, year int64) ir.Object {
	rec := ir.Object{
		"title": ir.String(title),
		"year":  ir.Int(year),
	}
	if id != "" {
		rec[ir.IDField] = ir.String(id)
	}
	return rec
}

// With returns a copy of rec with field set to v.
func With(rec ir.Object, field string, v ir.Value) ir.Object {
	out := rec.Clone()
	out[field] = v
	return out
}

// Tags builds a list of string values.
func Tags(tags ...string) ir.List {
	out := make(ir.List, len(tags))
	for i, tag := range tags {
		out[i] = ir.String(tag)
	}
	return out
}

// SampleBooks is a small fixed library used by the worked examples.
func SampleBooks() []ir.Object {
	published := func(y int) ir.Value {
		return ir.NewTime(time.Date(y, time.March, 1, 0, 0, 0, 0, time.UTC))
	}
	return []ir.Object{
		With(With(Book("b1", "Dune", 1965), "tags", Tags("scifi", "classic")), "rating", ir.Float(4.5)),
		With(With(Book("b2", "Neuromancer", 1984), "tags", Tags("scifi", "cyberpunk")), "published", published(1984)),
		With(Book("b3", "Snow Crash", 1992), "instock", ir.Bool(true)),
		With(Book("b4", "Anathem", 2008), "meta", ir.Object{"series": ir.Null{}, "pages": ir.Int(937)}),
		With(Book("b5", "The Left Hand of Darkness", 1969), "rating", ir.Float(4.1)),
		Book("b6", "Cryptonomicon", 1999),
		With(Book("b7", "Hyperion", 1989), "instock", ir.Bool(false)),
		With(Book("b8", "Perdido Street Station", 2000), "notes", ir.String("new weird")),
	}
}
