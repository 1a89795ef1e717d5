package driven

import (
	"context"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// VectorIndex stores embedding records partitioned by namespace.
// Each document owns exactly one namespace, so records from different
// documents never meet in a query.
//
// Implementations must treat Upsert as idempotent on record ID.
type VectorIndex interface {
	// Upsert stores records in the namespace, overwriting existing IDs.
	// The namespace is created implicitly.
	Upsert(ctx context.Context, namespace string, records []domain.EmbeddingRecord) error

	// Query returns up to topK matches ordered by descending cosine similarity.
	// Matches carry full metadata. A missing namespace yields no matches.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]domain.VectorMatch, error)

	// Fetch returns the records with the given IDs. Missing IDs are omitted.
	Fetch(ctx context.Context, namespace string, ids []string) (map[string]domain.EmbeddingRecord, error)

	// DeleteNamespace removes every record in the namespace.
	// Deleting a missing namespace is not an error.
	DeleteNamespace(ctx context.Context, namespace string) error

	// Stats reports whether the namespace exists and its record count.
	Stats(ctx context.Context, namespace string) (domain.NamespaceStats, error)

	// MaxTopK returns the largest topK a single Query may request.
	MaxTopK() int

	// Close releases resources.
	Close() error
}

// NamespaceScanner is implemented by vector indexes that can list every
// record in a namespace without a similarity query.
type NamespaceScanner interface {
	// Scan returns all records in the namespace in no particular order.
	Scan(ctx context.Context, namespace string) ([]domain.EmbeddingRecord, error)
}
