package driven

import (
	"context"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// Reranker reorders candidates by fine-grained relevance to a query.
// This is an optional service - when nil, search returns similarity order.
type Reranker interface {
	// Rerank scores candidates against the query and returns at most topN
	// results sorted by descending relevance.
	Rerank(ctx context.Context, query string, candidates []domain.RerankCandidate, topN int) ([]domain.RerankedResult, error)

	// ModelName returns the name of the rerank model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}
