// Package ir provides the value model shared by every shelf package.
//
// This package contains type definitions and pure functions only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Records are Objects; the reserved _id field holds the identifier
//   - Values of different kinds never compare equal (no Int/Float coercion)
//   - Null sorts before every other value in index order
//   - Content identifiers hash RFC 8785 canonical JSON, excluding _id
//   - Every failure surfaced by a store is a *StoreError
package ir
