package driving

import (
	"context"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// SearchService provides retrieval over a single indexed document.
type SearchService interface {
	// Search returns the passages of documentID most relevant to query.
	// Service failures yield an empty result, not an error. Only invalid
	// input and context cancellation are returned as errors.
	Search(ctx context.Context, documentID, query string, opts domain.SearchOptions) ([]domain.SearchResult, error)

	// Chunks returns every stored chunk of a document in chunk order.
	Chunks(ctx context.Context, documentID, identity string) ([]domain.Chunk, error)
}
