// Package sqlite provides the SQLite-backed download results ledger.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Schema
//
// The schema is managed by golang-migrate from versioned migrations embedded
// from the migrations/ directory. Each migration is a pair of .up.sql and
// .down.sql files.
//
// # Data Location
//
// The ledger lives at <export root>/meta/ledger.db, next to the export it
// describes.
//
// # Thread Safety
//
// All operations are thread-safe. Several chunk processes may append to the
// same ledger: the database runs in WAL mode with a busy timeout.
package sqlite
