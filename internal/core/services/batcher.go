package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// BatchOptions configures one embedding generation run.
type BatchOptions struct {
	// BatchSize is the number of chunks per request (default 100).
	BatchSize int

	// Concurrency is the maximum number of batches in flight (default 5).
	Concurrency int

	// Progress receives a snapshot after every completed batch. Optional.
	// Intermediate snapshots are dropped if the receiver is not keeping up;
	// the final snapshot is always delivered unless ctx is cancelled.
	Progress chan<- domain.ProgressInfo
}

func (o BatchOptions) withDefaults() BatchOptions {
	if o.BatchSize <= 0 {
		o.BatchSize = domain.DefaultBatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = domain.DefaultConcurrency
	}
	return o
}

// EmbeddingBatcher generates embeddings for many chunks with a bounded
// worker pool. Each batch is retried under the batcher's RetryPolicy.
type EmbeddingBatcher struct {
	embedder driven.EmbeddingService
	policy   RetryPolicy
	now      func() time.Time
}

// NewEmbeddingBatcher creates a batcher that calls embedder.
func NewEmbeddingBatcher(embedder driven.EmbeddingService, policy RetryPolicy) *EmbeddingBatcher {
	return &EmbeddingBatcher{
		embedder: embedder,
		policy:   policy,
		now:      time.Now,
	}
}

// Policy returns the batcher's retry policy.
func (b *EmbeddingBatcher) Policy() RetryPolicy {
	return b.policy
}

// WithPolicy returns a copy of the batcher using policy.
func (b *EmbeddingBatcher) WithPolicy(policy RetryPolicy) *EmbeddingBatcher {
	clone := *b
	clone.policy = policy
	return &clone
}

// batchOutcome is what a worker reports back to the coordinator.
type batchOutcome struct {
	job     domain.BatchJob
	vectors [][]float32
	err     error
}

// GenerateEmbeddings embeds all chunks. The result always has one slot per
// chunk in input order; slots of batches that exhausted their retries are nil.
// Partial failure is not an error. A cancelled context returns the partial
// result together with the context error.
func (b *EmbeddingBatcher) GenerateEmbeddings(
	ctx context.Context, chunks []domain.Chunk, opts BatchOptions,
) (domain.EmbeddingResult, error) {
	if len(chunks) == 0 {
		return domain.EmbeddingResult{}, domain.ErrNoChunks
	}
	if b.embedder == nil {
		return domain.EmbeddingResult{}, domain.ErrEmbeddingUnavailable
	}

	opts = opts.withDefaults()
	start := b.now()

	logger.Section("Embedding Generation")
	jobs := domain.PartitionBatches(chunks, opts.BatchSize)
	logger.Debug("Chunks: %d, batches: %d, batch size: %d, concurrency: %d",
		len(chunks), len(jobs), opts.BatchSize, opts.Concurrency)

	out := make([][]float32, len(chunks))
	failed, err := b.run(ctx, jobs, out, len(chunks), opts)

	result := domain.EmbeddingResult{
		Embeddings:       out,
		FailedBatches:    failed,
		SuccessfulChunks: countFilled(out),
		TimeTaken:        b.now().Sub(start),
	}
	logger.Info("Embedded %d/%d chunks in %s (%d failed batches)",
		result.SuccessfulChunks, len(chunks), result.TimeTaken.Round(time.Millisecond), len(failed))

	return result, err
}

// RetryFailedBatches re-embeds only the chunks of the given failed batches
// and merges them into a copy of previous by chunk index. Batch membership
// is recomputed with opts.BatchSize, which must match the original run.
func (b *EmbeddingBatcher) RetryFailedBatches(
	ctx context.Context,
	chunks []domain.Chunk,
	failedBatches []int,
	previous [][]float32,
	opts BatchOptions,
) (domain.EmbeddingResult, error) {
	if len(chunks) == 0 {
		return domain.EmbeddingResult{}, domain.ErrNoChunks
	}
	if len(previous) != len(chunks) {
		return domain.EmbeddingResult{}, fmt.Errorf("%w: %d previous embeddings for %d chunks",
			domain.ErrInvalidInput, len(previous), len(chunks))
	}
	if b.embedder == nil {
		return domain.EmbeddingResult{}, domain.ErrEmbeddingUnavailable
	}

	opts = opts.withDefaults()
	start := b.now()

	logger.Section("Embedding Retry")

	want := make(map[int]bool, len(failedBatches))
	for _, idx := range failedBatches {
		want[idx] = true
	}

	var jobs []domain.BatchJob
	for _, job := range domain.PartitionBatches(chunks, opts.BatchSize) {
		if want[job.BatchIndex] {
			jobs = append(jobs, job)
			delete(want, job.BatchIndex)
		}
	}
	for idx := range want {
		logger.Warn("Ignoring unknown batch index %d", idx)
	}

	out := make([][]float32, len(chunks))
	copy(out, previous)

	retryChunks := 0
	for i := range jobs {
		retryChunks += len(jobs[i].Chunks)
	}
	logger.Debug("Retrying %d batches (%d chunks)", len(jobs), retryChunks)

	failed, err := b.run(ctx, jobs, out, retryChunks, opts)

	result := domain.EmbeddingResult{
		Embeddings:       out,
		FailedBatches:    failed,
		SuccessfulChunks: countFilled(out),
		TimeTaken:        b.now().Sub(start),
	}
	logger.Info("Retry recovered %d batches, %d still failing",
		len(jobs)-len(failed), len(failed))

	return result, err
}

// run processes jobs on a pool of opts.Concurrency workers and writes each
// successful batch into out at its offset. Only the calling goroutine touches
// out and the progress counters. Returns the failed batch indices, sorted.
func (b *EmbeddingBatcher) run(
	ctx context.Context,
	jobs []domain.BatchJob,
	out [][]float32,
	totalChunks int,
	opts BatchOptions,
) ([]int, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	workers := opts.Concurrency
	if workers > len(jobs) {
		workers = len(jobs)
	}

	jobCh := make(chan domain.BatchJob)
	results := make(chan batchOutcome)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				results <- b.embedBatch(ctx, job)
			}
		}()
	}

	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	tracker := newProgressTracker(len(jobs), totalChunks, b.now(), opts.Progress)
	states := make(map[int]domain.BatchState, len(jobs))
	for i := range jobs {
		states[jobs[i].BatchIndex] = domain.BatchQueued
	}

	var failed []int
	for res := range results {
		if res.err != nil {
			states[res.job.BatchIndex] = domain.BatchFailed
			failed = append(failed, res.job.BatchIndex)
			logger.Warn("Batch %d failed: %v", res.job.BatchIndex, res.err)
		} else {
			states[res.job.BatchIndex] = domain.BatchSucceeded
			for i, vec := range res.vectors {
				out[res.job.Offset+i] = vec
			}
			logger.Debug("Batch %d embedded (%d chunks)", res.job.BatchIndex, len(res.job.Chunks))
		}
		tracker.complete(ctx, b.now(), len(res.job.Chunks))
	}

	// Batches never dispatched because ctx was cancelled.
	for i := range jobs {
		if !states[jobs[i].BatchIndex].IsTerminal() {
			failed = append(failed, jobs[i].BatchIndex)
		}
	}
	sort.Ints(failed)

	if err := ctx.Err(); err != nil {
		return failed, err
	}
	tracker.finish(ctx)

	return failed, nil
}

// embedBatch embeds one batch under the retry policy.
func (b *EmbeddingBatcher) embedBatch(ctx context.Context, job domain.BatchJob) batchOutcome {
	texts := job.Texts()
	var vectors [][]float32

	err := b.policy.Do(ctx, fmt.Sprintf("embed batch %d", job.BatchIndex), func(ctx context.Context, attempt int) error {
		job.Attempt = attempt
		vecs, err := b.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embedding service returned %d vectors for %d texts", len(vecs), len(texts))
		}
		for i, v := range vecs {
			if len(v) == 0 {
				return fmt.Errorf("embedding service returned an empty vector at position %d", i)
			}
		}
		vectors = vecs
		return nil
	})

	if err != nil && errors.Is(err, domain.ErrRateLimited) {
		logger.Warn("Batch %d exhausted retries while rate limited", job.BatchIndex)
	}

	return batchOutcome{job: job, vectors: vectors, err: err}
}

// countFilled counts non-empty embedding slots.
func countFilled(embeddings [][]float32) int {
	n := 0
	for _, e := range embeddings {
		if len(e) > 0 {
			n++
		}
	}
	return n
}

// progressTracker builds monotonic ProgressInfo snapshots.
type progressTracker struct {
	ch    chan<- domain.ProgressInfo
	start time.Time
	last  domain.ProgressInfo
}

func newProgressTracker(totalBatches, totalChunks int, start time.Time, ch chan<- domain.ProgressInfo) *progressTracker {
	return &progressTracker{
		ch:    ch,
		start: start,
		last: domain.ProgressInfo{
			TotalBatches: totalBatches,
			TotalChunks:  totalChunks,
		},
	}
}

// complete records one finished batch and publishes a snapshot without blocking.
func (t *progressTracker) complete(_ context.Context, now time.Time, chunks int) {
	p := t.last
	p.Seq++
	p.CompletedBatches++
	p.CompletedChunks += chunks
	if p.TotalBatches > 0 {
		p.PercentComplete = float64(p.CompletedBatches) / float64(p.TotalBatches) * 100
	}

	avg := now.Sub(t.start) / time.Duration(p.CompletedBatches)
	p.EstimatedTimeRemaining = avg * time.Duration(p.TotalBatches-p.CompletedBatches)

	t.last = p
	logger.Debug("Progress: %d/%d batches (%.0f%%), ETA %s",
		p.CompletedBatches, p.TotalBatches, p.PercentComplete, p.EstimatedTimeRemaining.Round(time.Second))

	if t.ch == nil || p.Done() {
		return
	}
	select {
	case t.ch <- p:
	default:
	}
}

// finish delivers the final snapshot, blocking until received or ctx is done.
func (t *progressTracker) finish(ctx context.Context) {
	if t.ch == nil || t.last.Seq == 0 {
		return
	}
	select {
	case t.ch <- t.last:
	case <-ctx.Done():
	}
}
