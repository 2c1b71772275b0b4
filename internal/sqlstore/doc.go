// Package sqlstore is the SQLite variant of the record store.
//
// Each collection is one table: a column per indexed field (with a SQLite
// index on it) plus a _doc column holding the whole record as JSON. Predicates
// are compiled to SQL by querysql; contains is answered with json_each over
// _doc.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - single connection: SQLite allows one writer at a time
//
// Timestamps are stored as Unix nanoseconds in their column, so their range
// is limited to the years 1678-2262.
//
// The collection's field layout is recorded in shelf_collections when its
// table is created. Reopening with a different layout fails instead of
// silently reading rows the schema no longer describes.
package sqlstore
