package driving

import (
	"context"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// IndexService manages the vectors of indexed documents.
type IndexService interface {
	// IndexDocument chunks, embeds and stores a document's text.
	// Partial embedding failures are reported in the result, not as an error.
	IndexDocument(ctx context.Context, documentID, text string, opts domain.IndexOptions) (*domain.IndexResult, error)

	// ResumeDocument re-embeds only the batches that failed in the last run.
	// text must be the same text that was indexed.
	ResumeDocument(ctx context.Context, documentID, text string, opts domain.IndexOptions) (*domain.IndexResult, error)

	// DeleteDocumentVectors removes all vectors of a document.
	DeleteDocumentVectors(ctx context.Context, documentID, identity string) error

	// GetDocumentStats reports whether a document is indexed and its chunk count.
	GetDocumentStats(ctx context.Context, documentID, identity string) (domain.DocumentStats, error)

	// ListDocuments returns the registry entries of all indexed documents.
	ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error)
}
