package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// Ensure DocumentRegistry implements the interface.
var _ driven.DocumentRegistry = (*DocumentRegistry)(nil)

// DocumentRegistry is an in-memory implementation of driven.DocumentRegistry.
type DocumentRegistry struct {
	mu      sync.RWMutex
	records map[string]domain.DocumentRecord
}

// NewDocumentRegistry creates a new in-memory document registry.
func NewDocumentRegistry() *DocumentRegistry {
	return &DocumentRegistry{
		records: make(map[string]domain.DocumentRecord),
	}
}

// Save stores or replaces a record.
func (r *DocumentRegistry) Save(_ context.Context, rec domain.DocumentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.FailedBatches = slices.Clone(rec.FailedBatches)
	r.records[rec.ID] = rec
	return nil
}

// Get retrieves a record by document ID.
func (r *DocumentRegistry) Get(_ context.Context, id string) (*domain.DocumentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	rec.FailedBatches = slices.Clone(rec.FailedBatches)
	return &rec, nil
}

// Delete removes a record. Deleting a missing record is a no-op.
func (r *DocumentRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, id)
	return nil
}

// List returns all records ordered by document ID.
func (r *DocumentRegistry) List(_ context.Context) ([]domain.DocumentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.DocumentRecord, 0, len(r.records))
	for _, rec := range r.records {
		rec.FailedBatches = slices.Clone(rec.FailedBatches)
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
