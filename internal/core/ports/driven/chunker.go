package driven

import "github.com/custodia-labs/sercha-docindex/internal/core/domain"

// Chunker splits document text into overlapping chunks.
// Implementations must be deterministic: identical input and parameters
// always produce identical chunks, so re-indexing is idempotent.
type Chunker interface {
	// Name returns the chunker name for logging and configuration.
	Name() string

	// Chunk splits text into chunks of at most targetSize characters where
	// possible, sharing up to overlap characters between neighbours.
	// A non-positive targetSize or a negative overlap falls back to the
	// implementation's defaults.
	// Returns nil for empty or whitespace-only text.
	Chunk(text string, targetSize, overlap int) []domain.Chunk
}
