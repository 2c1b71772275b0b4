// Package harness runs YAML scenarios against every storage backend and
// checks that they all behave the same.
//
// # Scenario Format
//
//	name: book_queries
//	description: "What this scenario validates"
//	schema: ../schema/library.cue   # relative to the scenario file
//	collection: Book
//	policy:
//	  strict_fetch_many: false
//	  ignore_missing_delete: false
//	setup:
//	  - {_id: b1, title: Dune, year: 1965}
//	steps:
//	  - op: query
//	    where: "year > 1960"
//	    order: "-year"
//	    limit: 2
//	    expect:
//	      ids: [b1]
//	  - op: fetch
//	    id: zz
//	    expect:
//	      error: NOT_FOUND
//	assertions:
//	  - type: final_count
//	    where: "year = 1965"
//	    count: 1
//
// # Operations
//
// create, create_many, fetch, fetch_many, fetch_all, exists, count, query,
// update, update_many, delete, delete_many and delete_all. A step without an
// expect clause must succeed.
//
// # Assertion Types
//
//   - trace_contains: an operation (optionally on an id, with an outcome) ran
//   - trace_order: operations first ran in this order
//   - trace_count: an operation ran exactly N times
//   - final_state: a record holds the expected fields, or is absent
//   - final_count: N records match a predicate at the end
//
// # Deterministic Testing
//
// Records created without an _id get ids from ident.SequenceGenerator
// ("id-000001", ...), and every backend starts from an empty temporary
// directory, so traces are identical across runs and across backends. The
// trace snapshot is what golden files record, and RunAll fails a backend
// whose trace differs from the first.
package harness
