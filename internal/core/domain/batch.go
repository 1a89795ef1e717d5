package domain

import "time"

// BatchState is the lifecycle state of a BatchJob.
type BatchState string

// Batch lifecycle states.
const (
	BatchQueued    BatchState = "queued"
	BatchInFlight  BatchState = "in_flight"
	BatchSucceeded BatchState = "succeeded"
	BatchFailed    BatchState = "failed"
)

// IsTerminal returns true if the batch will not be attempted again.
func (s BatchState) IsTerminal() bool {
	return s == BatchSucceeded || s == BatchFailed
}

// BatchJob is a unit of concurrent embedding work.
// Batch count and membership are fixed when the job is created.
type BatchJob struct {
	// BatchIndex is the batch's position in the partition.
	BatchIndex int

	// Offset is the input index of the batch's first chunk.
	Offset int

	// Chunks are the batch members, in order.
	Chunks []Chunk

	// Attempt is the zero-based attempt number.
	Attempt int

	// State is the current lifecycle state.
	State BatchState
}

// Texts returns the chunk texts in batch order.
func (j *BatchJob) Texts() []string {
	texts := make([]string, len(j.Chunks))
	for i := range j.Chunks {
		texts[i] = j.Chunks[i].Text
	}
	return texts
}

// PartitionBatches splits chunks into consecutive batches of batchSize.
func PartitionBatches(chunks []Chunk, batchSize int) []BatchJob {
	if batchSize <= 0 {
		batchSize = len(chunks)
	}
	if len(chunks) == 0 {
		return nil
	}
	jobs := make([]BatchJob, 0, (len(chunks)+batchSize-1)/batchSize)
	for offset := 0; offset < len(chunks); offset += batchSize {
		end := offset + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		jobs = append(jobs, BatchJob{
			BatchIndex: len(jobs),
			Offset:     offset,
			Chunks:     chunks[offset:end],
			State:      BatchQueued,
		})
	}
	return jobs
}

// EmbeddingResult is the outcome of an embedding generation run.
// Embeddings always has one slot per input chunk, in input order.
// Slots of failed batches are nil.
type EmbeddingResult struct {
	Embeddings       [][]float32
	FailedBatches    []int
	SuccessfulChunks int
	TimeTaken        time.Duration
}

// FailedChunkIndices returns the input indices whose slots are empty.
func (r *EmbeddingResult) FailedChunkIndices() []int {
	var idx []int
	for i, e := range r.Embeddings {
		if len(e) == 0 {
			idx = append(idx, i)
		}
	}
	return idx
}

// ProgressInfo is a snapshot of an indexing job's progress.
// Counters never decrease within one job and Seq strictly increases.
type ProgressInfo struct {
	Seq                    uint64
	CompletedBatches       int
	TotalBatches           int
	CompletedChunks        int
	TotalChunks            int
	PercentComplete        float64
	EstimatedTimeRemaining time.Duration
}

// Done returns true once every batch has completed.
func (p ProgressInfo) Done() bool {
	return p.TotalBatches > 0 && p.CompletedBatches >= p.TotalBatches
}
