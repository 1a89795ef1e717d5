// Package domain defines the core business entities for docindex.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Chunk: A contiguous passage of a document
//   - EmbeddingRecord: A chunk vector with its metadata, keyed by chunk ID
//   - BatchJob: A unit of concurrent embedding work
//   - ProgressInfo: A snapshot of an indexing job's progress
//   - SearchResult: A ranked passage returned to callers
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
