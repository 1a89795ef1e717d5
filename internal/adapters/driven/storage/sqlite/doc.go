// Package sqlite provides the embedded SQLite backend for docindex.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. A single database file backs two ports:
//
//   - driven.VectorIndex: chunk vectors stored as little-endian float32 BLOBs,
//     queried by an exact cosine scan over the namespace
//   - driven.DocumentRegistry: ownership and failed batches per document
//
// # Schema
//
// The schema is managed through versioned migrations in the migrations/
// directory. Applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.docindex/data/docindex.db
package sqlite
