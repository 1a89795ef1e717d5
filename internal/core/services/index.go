package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// IndexService chunks, embeds and stores documents.
type IndexService struct {
	chunker  driven.Chunker
	batcher  *EmbeddingBatcher
	vectors  *VectorStore
	registry driven.DocumentRegistry
	locks    keyedMutex
	now      func() time.Time
}

// NewIndexService creates a new index service.
// The registry is optional; without it resume and ownership are unavailable.
func NewIndexService(
	chunker driven.Chunker,
	batcher *EmbeddingBatcher,
	vectors *VectorStore,
	registry driven.DocumentRegistry,
) *IndexService {
	return &IndexService{
		chunker:  chunker,
		batcher:  batcher,
		vectors:  vectors,
		registry: registry,
		now:      time.Now,
	}
}

// IndexDocument chunks text, embeds every chunk and stores the vectors in
// the document's namespace, replacing any previous vectors.
func (s *IndexService) IndexDocument(
	ctx context.Context, documentID, text string, opts domain.IndexOptions,
) (*domain.IndexResult, error) {
	start := s.now()
	jobID := uuid.NewString()

	logger.Section("Index Document")
	logger.Debug("Job %s: document %q, %d bytes", jobID, documentID, len(text))

	ns, err := s.validate(documentID, text)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.lock(ns)
	defer unlock()

	owner, err := s.owner(ctx, documentID, opts.Identity)
	if err != nil {
		return nil, err
	}

	chunks := s.chunker.Chunk(text, opts.ChunkSize, opts.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, domain.ErrNoChunks
	}
	logger.Info("Job %s: %d chunks", jobID, len(chunks))

	result := &domain.IndexResult{JobID: jobID, Chunks: len(chunks)}
	batchOpts := batchOptions(opts)

	entry := domain.DocumentRecord{
		ID:           documentID,
		Owner:        owner,
		ChunkCount:   len(chunks),
		BatchSize:    batchOpts.BatchSize,
		ChunkSize:    opts.ChunkSize,
		ChunkOverlap: opts.ChunkOverlap,
	}

	embedded, err := s.batcher.WithPolicy(s.policy(opts)).GenerateEmbeddings(ctx, chunks, batchOpts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("Job %s: embedding failed: %v", jobID, err)
		s.clear(ctx, jobID, documentID)
		result.FailedBatches = allBatches(len(chunks), batchOpts.BatchSize)
		result.TimeTaken = s.now().Sub(start)
		entry.FailedBatches = result.FailedBatches
		s.record(ctx, entry)
		return result, nil
	}

	records := buildRecords(documentID, chunks, embedded.Embeddings, opts.Extra, nil)
	failed := embedded.FailedBatches

	// Vectors of the previous version go even when nothing new was embedded:
	// every stored chunk ID must belong to the current text.
	s.clear(ctx, jobID, documentID)
	if len(records) > 0 {
		if err := s.vectors.Upsert(ctx, documentID, records); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("Job %s: upsert failed: %v", jobID, err)
			result.FailedBatches = allBatches(len(chunks), batchOpts.BatchSize)
			result.TimeTaken = s.now().Sub(start)
			entry.FailedBatches = result.FailedBatches
			s.record(ctx, entry)
			return result, nil
		}
	}

	entry.FailedBatches = failed
	s.record(ctx, entry)

	result.Success = len(records) > 0
	result.SuccessfulChunks = len(records)
	result.FailedBatches = failed
	result.TimeTaken = s.now().Sub(start)

	logger.Info("Job %s: stored %d/%d chunks in %s", jobID, len(records), len(chunks),
		result.TimeTaken.Round(time.Millisecond))
	if len(failed) > 0 {
		logger.Warn("Job %s: %d batches failed, resume to retry them", jobID, len(failed))
	}
	return result, nil
}

// ResumeDocument re-embeds the batches that failed in the last run of a
// document, plus any batch whose vectors are missing from the index.
// The text is re-chunked with the chunk size and overlap of that run.
func (s *IndexService) ResumeDocument(
	ctx context.Context, documentID, text string, opts domain.IndexOptions,
) (*domain.IndexResult, error) {
	start := s.now()
	jobID := uuid.NewString()

	logger.Section("Resume Document")

	ns, err := s.validate(documentID, text)
	if err != nil {
		return nil, err
	}
	if s.registry == nil {
		return nil, fmt.Errorf("resume %s: %w", documentID, domain.ErrNotImplemented)
	}

	unlock := s.locks.lock(ns)
	defer unlock()

	rec, err := s.registry.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", documentID, err)
	}
	if !rec.OwnedBy(opts.Identity) {
		return nil, fmt.Errorf("resume %s: %w", documentID, domain.ErrForbidden)
	}

	chunks := s.chunker.Chunk(text, rec.ChunkSize, rec.ChunkOverlap)
	if len(chunks) != rec.ChunkCount {
		return nil, fmt.Errorf("%w: text produced %d chunks, indexed document has %d",
			domain.ErrInvalidInput, len(chunks), rec.ChunkCount)
	}

	batchOpts := batchOptions(opts)
	if rec.BatchSize > 0 {
		batchOpts.BatchSize = rec.BatchSize
	}

	previous, err := s.storedVectors(ctx, documentID, chunks)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("Job %s: reading stored vectors failed: %v", jobID, err)
		previous = make([][]float32, len(chunks))
	}

	pending := pendingBatches(rec.FailedBatches, previous, batchOpts.BatchSize)
	result := &domain.IndexResult{JobID: jobID, Chunks: len(chunks)}
	if len(pending) == 0 {
		logger.Info("Job %s: nothing to resume", jobID)
		result.Success = true
		result.SuccessfulChunks = countFilled(previous)
		result.TimeTaken = s.now().Sub(start)
		rec.BatchSize = batchOpts.BatchSize
		rec.FailedBatches = nil
		s.record(ctx, *rec)
		return result, nil
	}
	logger.Info("Job %s: resuming %d batches", jobID, len(pending))

	embedded, err := s.batcher.WithPolicy(s.policy(opts)).
		RetryFailedBatches(ctx, chunks, pending, previous, batchOpts)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("Job %s: embedding failed: %v", jobID, err)
		result.FailedBatches = pending
		result.SuccessfulChunks = countFilled(previous)
		result.TimeTaken = s.now().Sub(start)
		return result, nil
	}

	records := buildRecords(documentID, chunks, embedded.Embeddings, opts.Extra, previous)
	failed := embedded.FailedBatches
	stored := embedded.SuccessfulChunks
	if len(records) > 0 {
		if err := s.vectors.Upsert(ctx, documentID, records); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn("Job %s: upsert failed: %v", jobID, err)
			failed = pending
			stored = countFilled(previous)
		}
	}

	rec.BatchSize = batchOpts.BatchSize
	rec.FailedBatches = failed
	s.record(ctx, *rec)

	result.Success = len(failed) < len(pending)
	result.SuccessfulChunks = stored
	result.FailedBatches = failed
	result.TimeTaken = s.now().Sub(start)

	logger.Info("Job %s: recovered %d of %d batches", jobID, len(pending)-len(failed), len(pending))
	return result, nil
}

// DeleteDocumentVectors removes a document's vectors and registry entry.
// A caller that does not own the document gets a silent no-op.
func (s *IndexService) DeleteDocumentVectors(ctx context.Context, documentID, identity string) error {
	logger.Section("Delete Document")

	ns, err := namespace(documentID)
	if err != nil {
		return err
	}

	unlock := s.locks.lock(ns)
	defer unlock()

	ok, err := authorized(ctx, s.registry, documentID, identity)
	if err != nil {
		return fmt.Errorf("delete %s: %w", documentID, err)
	}
	if !ok {
		logger.Debug("Identity %q does not own %s, skipping delete", identity, documentID)
		return nil
	}

	if err := s.vectors.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if s.registry != nil {
		if err := s.registry.Delete(ctx, documentID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete %s from registry: %w", documentID, err)
		}
	}

	logger.Info("Deleted vectors for %s", documentID)
	return nil
}

// GetDocumentStats reports whether a document is indexed and how many chunks it has.
func (s *IndexService) GetDocumentStats(ctx context.Context, documentID, identity string) (domain.DocumentStats, error) {
	if _, err := namespace(documentID); err != nil {
		return domain.DocumentStats{}, err
	}

	ok, err := authorized(ctx, s.registry, documentID, identity)
	if err != nil {
		return domain.DocumentStats{}, fmt.Errorf("stats %s: %w", documentID, err)
	}
	if !ok {
		return domain.DocumentStats{}, nil
	}

	stats, err := s.vectors.Stats(ctx, documentID)
	if err != nil {
		return domain.DocumentStats{}, err
	}
	return domain.DocumentStats{Exists: stats.Exists, ChunkCount: stats.Count}, nil
}

// ListDocuments returns all registry entries.
func (s *IndexService) ListDocuments(ctx context.Context) ([]domain.DocumentRecord, error) {
	if s.registry == nil {
		return []domain.DocumentRecord{}, nil
	}
	return s.registry.List(ctx)
}

// validate checks the document ID and text and returns the namespace.
func (s *IndexService) validate(documentID, text string) (string, error) {
	ns, err := namespace(documentID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrEmptyDocument
	}
	if s.chunker == nil || s.batcher == nil || s.vectors == nil {
		return "", fmt.Errorf("index service is not fully configured: %w", domain.ErrNotImplemented)
	}
	return ns, nil
}

// owner returns the owner to record for a (re-)index by identity, or
// ErrForbidden if the document belongs to someone else.
func (s *IndexService) owner(ctx context.Context, documentID, identity string) (string, error) {
	if s.registry == nil {
		return identity, nil
	}
	rec, err := s.registry.Get(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) {
		if err := s.checkNamespace(ctx, documentID); err != nil {
			return "", err
		}
		return identity, nil
	}
	if err != nil {
		return "", fmt.Errorf("index %s: %w", documentID, err)
	}
	if !rec.OwnedBy(identity) {
		return "", fmt.Errorf("index %s: %w", documentID, domain.ErrForbidden)
	}
	if rec.Owner != "" {
		return rec.Owner, nil
	}
	return identity, nil
}

// checkNamespace rejects a new document whose namespace is already held by
// a registered document with a different ID, such as "doc-1" and "doc1".
func (s *IndexService) checkNamespace(ctx context.Context, documentID string) error {
	records, err := s.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("index %s: %w", documentID, err)
	}
	ns := domain.NamespaceFor(documentID)
	for _, rec := range records {
		if rec.ID != documentID && domain.NamespaceFor(rec.ID) == ns {
			return fmt.Errorf("index %s: %w: %q maps to namespace %q", documentID, domain.ErrNamespaceTaken, rec.ID, ns)
		}
	}
	return nil
}

// record saves the registry entry for a document. Failures are logged.
func (s *IndexService) record(ctx context.Context, rec domain.DocumentRecord) {
	if s.registry == nil {
		return
	}
	rec.IndexedAt = s.now().UTC()
	if err := s.registry.Save(ctx, rec); err != nil {
		logger.Warn("Saving registry entry for %s failed: %v", rec.ID, err)
	}
}

// clear removes a document's vectors before a re-index. Failures are logged.
func (s *IndexService) clear(ctx context.Context, jobID, documentID string) {
	if err := s.vectors.DeleteDocument(ctx, documentID); err != nil {
		logger.Warn("Job %s: clearing previous vectors failed: %v", jobID, err)
	}
}

// storedVectors returns the vectors already in the index, one slot per chunk.
// A stored record whose text differs from the chunk counts as missing.
func (s *IndexService) storedVectors(ctx context.Context, documentID string, chunks []domain.Chunk) ([][]float32, error) {
	n := len(chunks)
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	records, err := s.vectors.FetchChunks(ctx, documentID, indices)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, n)
	for _, rec := range records {
		idx := rec.Metadata.ChunkIndex
		if idx < 0 || idx >= n {
			continue
		}
		if rec.Metadata.ChunkText != chunks[idx].Text {
			logger.Debug("Stored chunk %d of %s is stale", idx, documentID)
			continue
		}
		out[idx] = rec.Vector
	}
	return out, nil
}

// policy derives the retry policy for a job from the batcher's defaults.
func (s *IndexService) policy(opts domain.IndexOptions) RetryPolicy {
	p := s.batcher.Policy()
	if opts.MaxRetries > 0 {
		p.MaxRetries = opts.MaxRetries
	}
	if opts.BaseRetryDelay > 0 {
		p.BaseDelay = opts.BaseRetryDelay
	}
	return p
}

func batchOptions(opts domain.IndexOptions) BatchOptions {
	return BatchOptions{
		BatchSize:   opts.BatchSize,
		Concurrency: opts.Concurrency,
		Progress:    opts.Progress,
	}.withDefaults()
}

// buildRecords creates records for every chunk with an embedding. Chunks
// that already have a vector in skip are left out.
func buildRecords(
	documentID string, chunks []domain.Chunk, embeddings [][]float32,
	extra map[string]string, skip [][]float32,
) []domain.EmbeddingRecord {
	records := make([]domain.EmbeddingRecord, 0, len(chunks))
	for i, chunk := range chunks {
		vec := embeddings[i]
		if len(vec) == 0 {
			continue
		}
		if skip != nil && len(skip[i]) > 0 {
			continue
		}
		md := domain.RecordMetadata{
			DocumentID: documentID,
			ChunkIndex: chunk.Index,
			ChunkText:  chunk.Text,
		}
		if len(extra) > 0 {
			md.Extra = maps.Clone(extra)
		}
		records = append(records, domain.EmbeddingRecord{
			ID:       domain.ChunkRecordID(documentID, chunk.Index),
			Vector:   vec,
			Metadata: md,
		})
	}
	return records
}

// pendingBatches merges recorded failures with batches missing any vector.
func pendingBatches(recorded []int, stored [][]float32, batchSize int) []int {
	pending := make(map[int]bool, len(recorded))
	for _, b := range recorded {
		pending[b] = true
	}
	for i, vec := range stored {
		if len(vec) == 0 {
			pending[i/batchSize] = true
		}
	}
	out := make([]int, 0, len(pending))
	for b := range pending {
		if b*batchSize < len(stored) {
			out = append(out, b)
		}
	}
	sort.Ints(out)
	return out
}

func allBatches(chunkCount, batchSize int) []int {
	n := (chunkCount + batchSize - 1) / batchSize
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
