package driven

import (
	"context"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// DocumentRegistry persists per-document indexing state: the owner,
// the chunk count, and failed batches awaiting a resume.
type DocumentRegistry interface {
	// Save stores or replaces the record for a document.
	Save(ctx context.Context, record domain.DocumentRecord) error

	// Get retrieves a record. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, documentID string) (*domain.DocumentRecord, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, documentID string) error

	// List returns all records ordered by document ID.
	List(ctx context.Context) ([]domain.DocumentRecord, error)
}
