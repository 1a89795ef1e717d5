package domain

import "time"

// Default indexing parameters.
const (
	DefaultBatchSize      = 100
	DefaultConcurrency    = 5
	DefaultMaxRetries     = 3
	DefaultBaseRetryDelay = time.Second

	// UnsetOverlap asks the chunker for its configured overlap.
	UnsetOverlap = -1
)

// IndexOptions configures a document indexing job.
// Zero values fall back to the configured defaults, except ChunkOverlap
// where zero means no overlap and UnsetOverlap means the default.
// Resume ignores both chunking fields and reuses the recorded ones.
type IndexOptions struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	Concurrency    int
	MaxRetries     int
	BaseRetryDelay time.Duration

	// Progress receives a snapshot after every batch. Optional.
	Progress chan<- ProgressInfo

	// Extra is copied into every record's metadata.
	Extra map[string]string

	// Identity is recorded as the document owner and checked on resume.
	Identity string
}

// IndexResult reports the outcome of an indexing job.
type IndexResult struct {
	// JobID identifies this indexing run in logs.
	JobID string `json:"jobId"`

	// Chunks is the number of chunks the document produced.
	Chunks int `json:"chunks"`

	// Success is true when at least one chunk was embedded and stored.
	Success bool `json:"success"`

	// SuccessfulChunks is the number of chunks stored in the index.
	SuccessfulChunks int `json:"successfulChunks"`

	// FailedBatches lists batches to pass to a resume.
	FailedBatches []int `json:"failedBatches,omitempty"`

	// TimeTaken is the wall time of the job.
	TimeTaken time.Duration `json:"timeTaken"`
}
