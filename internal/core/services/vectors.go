package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// Default upsert parameters.
const (
	DefaultUpsertBatchSize   = 100
	DefaultUpsertConcurrency = 3
)

// VectorStore wraps a driven.VectorIndex with document-level operations:
// namespace derivation, batched concurrent upserts, and bulk reads.
type VectorStore struct {
	index             driven.VectorIndex
	upsertBatchSize   int
	upsertConcurrency int
}

// VectorStoreOption configures a VectorStore.
type VectorStoreOption func(*VectorStore)

// WithUpsertBatchSize sets the number of records per upsert request.
func WithUpsertBatchSize(n int) VectorStoreOption {
	return func(s *VectorStore) {
		if n > 0 {
			s.upsertBatchSize = n
		}
	}
}

// WithUpsertConcurrency sets the number of upsert requests in flight.
func WithUpsertConcurrency(n int) VectorStoreOption {
	return func(s *VectorStore) {
		if n > 0 {
			s.upsertConcurrency = n
		}
	}
}

// NewVectorStore creates a VectorStore over index.
func NewVectorStore(index driven.VectorIndex, opts ...VectorStoreOption) *VectorStore {
	s := &VectorStore{
		index:             index,
		upsertBatchSize:   DefaultUpsertBatchSize,
		upsertConcurrency: DefaultUpsertConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// namespace returns the namespace for a document or ErrInvalidInput.
func namespace(documentID string) (string, error) {
	ns := domain.NamespaceFor(documentID)
	if ns == "" {
		return "", fmt.Errorf("%w: document ID %q has no alphanumeric characters", domain.ErrInvalidInput, documentID)
	}
	return ns, nil
}

// Upsert writes records for a document in batches with bounded concurrency.
// The first failing batch cancels the rest and its error is returned.
// Batches already written stay written; re-upserting is idempotent.
func (s *VectorStore) Upsert(ctx context.Context, documentID string, records []domain.EmbeddingRecord) error {
	if s.index == nil {
		return domain.ErrVectorIndexUnavailable
	}
	ns, err := namespace(documentID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	sem := make(chan struct{}, s.upsertConcurrency)

	batches := 0
	for start := 0; start < len(records); start += s.upsertBatchSize {
		end := start + s.upsertBatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]
		batches++

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			errOnce.Do(func() { firstErr = ctx.Err() })
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(batchNum int, batch []domain.EmbeddingRecord) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.index.Upsert(ctx, ns, batch); err != nil {
				errOnce.Do(func() {
					firstErr = fmt.Errorf("upsert batch %d: %w", batchNum, err)
					cancel()
				})
			}
		}(batches-1, batch)
	}

	wg.Wait()

	if firstErr != nil {
		logger.Warn("Upsert into %s failed: %v", ns, firstErr)
		return firstErr
	}

	logger.Debug("Upserted %d records into %s in %d batches", len(records), ns, batches)
	return nil
}

// Query returns the topK records of a document most similar to vector.
func (s *VectorStore) Query(ctx context.Context, documentID string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	ns, err := namespace(documentID)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	if limit := s.index.MaxTopK(); limit > 0 && topK > limit {
		topK = limit
	}

	matches, err := s.index.Query(ctx, ns, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", ns, err)
	}
	return matches, nil
}

// FetchChunks fetches the given chunk indices of a document by record ID.
// Missing chunks are skipped. The result is sorted by chunk index.
func (s *VectorStore) FetchChunks(ctx context.Context, documentID string, indices []int) ([]domain.EmbeddingRecord, error) {
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	ns, err := namespace(documentID)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 {
		return nil, nil
	}

	ids := make([]string, len(indices))
	for i, idx := range indices {
		ids[i] = domain.ChunkRecordID(documentID, idx)
	}

	found, err := s.index.Fetch(ctx, ns, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ns, err)
	}

	records := make([]domain.EmbeddingRecord, 0, len(found))
	for _, id := range ids {
		if rec, ok := found[id]; ok {
			records = append(records, rec)
		}
	}
	sortRecords(records)
	return records, nil
}

// FetchFirst fetches chunks 0..n-1 of a document.
func (s *VectorStore) FetchFirst(ctx context.Context, documentID string, n int) ([]domain.EmbeddingRecord, error) {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return s.FetchChunks(ctx, documentID, indices)
}

// GetAllChunks returns every record of a document sorted by chunk index.
// It uses the index's native scan when available. Otherwise it queries with
// a zero vector for min(count, MaxTopK) matches, which may be incomplete for
// namespaces larger than MaxTopK.
func (s *VectorStore) GetAllChunks(ctx context.Context, documentID string) ([]domain.EmbeddingRecord, error) {
	if s.index == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}
	ns, err := namespace(documentID)
	if err != nil {
		return nil, err
	}

	if scanner, ok := s.index.(driven.NamespaceScanner); ok {
		records, err := scanner.Scan(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", ns, err)
		}
		sortRecords(records)
		return records, nil
	}

	stats, err := s.index.Stats(ctx, ns)
	if err != nil {
		return nil, fmt.Errorf("stats %s: %w", ns, err)
	}
	if !stats.Exists || stats.Count == 0 {
		return nil, nil
	}

	topK := stats.Count
	if limit := s.index.MaxTopK(); limit > 0 && topK > limit {
		logger.Warn("Namespace %s has %d records; listing is capped at %d", ns, stats.Count, limit)
		topK = limit
	}

	dims := 0
	if sample, err := s.FetchFirst(ctx, documentID, 1); err == nil && len(sample) == 1 {
		dims = len(sample[0].Vector)
	}
	if dims == 0 {
		return nil, fmt.Errorf("list %s: cannot determine vector dimension", ns)
	}

	matches, err := s.index.Query(ctx, ns, make([]float32, dims), topK)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ns, err)
	}

	records := make([]domain.EmbeddingRecord, len(matches))
	for i, m := range matches {
		records[i] = domain.EmbeddingRecord{ID: m.ID, Metadata: m.Metadata}
	}
	sortRecords(records)
	return records, nil
}

// DeleteDocument removes a document's namespace.
func (s *VectorStore) DeleteDocument(ctx context.Context, documentID string) error {
	if s.index == nil {
		return domain.ErrVectorIndexUnavailable
	}
	ns, err := namespace(documentID)
	if err != nil {
		return err
	}
	if err := s.index.DeleteNamespace(ctx, ns); err != nil {
		return fmt.Errorf("delete %s: %w", ns, err)
	}
	return nil
}

// Stats returns a document's namespace statistics.
func (s *VectorStore) Stats(ctx context.Context, documentID string) (domain.NamespaceStats, error) {
	if s.index == nil {
		return domain.NamespaceStats{}, domain.ErrVectorIndexUnavailable
	}
	ns, err := namespace(documentID)
	if err != nil {
		return domain.NamespaceStats{}, err
	}
	stats, err := s.index.Stats(ctx, ns)
	if err != nil {
		return domain.NamespaceStats{}, fmt.Errorf("stats %s: %w", ns, err)
	}
	return stats, nil
}

// sortRecords orders records by chunk index.
func sortRecords(records []domain.EmbeddingRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Metadata.ChunkIndex < records[j].Metadata.ChunkIndex
	})
}
