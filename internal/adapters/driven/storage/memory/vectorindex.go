package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/vecmath"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// DefaultMaxTopK is the largest query size the memory index serves.
const DefaultMaxTopK = 10000

// Ensure VectorIndex implements the interfaces.
var (
	_ driven.VectorIndex      = (*VectorIndex)(nil)
	_ driven.NamespaceScanner = (*VectorIndex)(nil)
)

// VectorIndex is an in-memory implementation of driven.VectorIndex.
// Queries are exact brute-force cosine scans.
type VectorIndex struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]domain.EmbeddingRecord
}

// NewVectorIndex creates a new in-memory vector index.
func NewVectorIndex() *VectorIndex {
	return &VectorIndex{
		namespaces: make(map[string]map[string]domain.EmbeddingRecord),
	}
}

// Upsert stores records in a namespace, replacing records with the same ID.
func (v *VectorIndex) Upsert(_ context.Context, namespace string, records []domain.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	ns, ok := v.namespaces[namespace]
	if !ok {
		ns = make(map[string]domain.EmbeddingRecord, len(records))
		v.namespaces[namespace] = ns
	}
	for _, rec := range records {
		ns[rec.ID] = cloneRecord(rec)
	}
	return nil
}

// Query returns the topK records most similar to vector.
func (v *VectorIndex) Query(_ context.Context, namespace string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ns := v.namespaces[namespace]
	records := make([]domain.EmbeddingRecord, 0, len(ns))
	for _, rec := range ns {
		records = append(records, rec)
	}
	return vecmath.TopK(records, vector, min(topK, DefaultMaxTopK)), nil
}

// Fetch returns the records with the given IDs. Missing IDs are omitted.
func (v *VectorIndex) Fetch(_ context.Context, namespace string, ids []string) (map[string]domain.EmbeddingRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ns := v.namespaces[namespace]
	out := make(map[string]domain.EmbeddingRecord, len(ids))
	for _, id := range ids {
		if rec, ok := ns[id]; ok {
			out[id] = cloneRecord(rec)
		}
	}
	return out, nil
}

// Scan returns every record in a namespace.
func (v *VectorIndex) Scan(_ context.Context, namespace string) ([]domain.EmbeddingRecord, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ns := v.namespaces[namespace]
	out := make([]domain.EmbeddingRecord, 0, len(ns))
	for _, rec := range ns {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

// DeleteNamespace removes a namespace. Deleting a missing namespace is a no-op.
func (v *VectorIndex) DeleteNamespace(_ context.Context, namespace string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.namespaces, namespace)
	return nil
}

// Stats reports whether a namespace exists and its record count.
func (v *VectorIndex) Stats(_ context.Context, namespace string) (domain.NamespaceStats, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	ns, ok := v.namespaces[namespace]
	return domain.NamespaceStats{Exists: ok && len(ns) > 0, Count: len(ns)}, nil
}

// MaxTopK returns the largest query size served.
func (v *VectorIndex) MaxTopK() int {
	return DefaultMaxTopK
}

// Close is a no-op for the memory index.
func (v *VectorIndex) Close() error {
	return nil
}

func cloneRecord(rec domain.EmbeddingRecord) domain.EmbeddingRecord {
	rec.Vector = slices.Clone(rec.Vector)
	rec.Metadata.Extra = maps.Clone(rec.Metadata.Extra)
	return rec
}
