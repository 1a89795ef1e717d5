package domain

import (
	"strconv"
	"strings"
	"time"
)

// Chunk is a contiguous passage of a document produced by the chunker.
// Chunks are immutable once produced.
type Chunk struct {
	// Text is the passage content.
	Text string `json:"text"`

	// Index is the ordinal position within the document.
	// It is stable across re-indexing and used as the sort key for structural results.
	Index int `json:"index"`
}

// RecordMetadata is the metadata stored alongside every vector.
type RecordMetadata struct {
	// DocumentID is the unsanitised document identifier.
	DocumentID string `json:"documentId"`

	// ChunkIndex is the chunk's position within the document.
	ChunkIndex int `json:"chunkIndex"`

	// ChunkText is the chunk content, returned with query matches.
	ChunkText string `json:"chunkText"`

	// Extra contains caller-supplied key-value pairs.
	Extra map[string]string `json:"extra,omitempty"`
}

// EmbeddingRecord is a chunk vector keyed by its chunk record ID.
type EmbeddingRecord struct {
	ID       string
	Vector   []float32
	Metadata RecordMetadata
}

// ChunkRecordID returns the record ID for a chunk: "<documentId>_chunk_<index>".
func ChunkRecordID(documentID string, index int) string {
	return documentID + "_chunk_" + strconv.Itoa(index)
}

// NamespaceFor derives the vector index namespace for a document by
// stripping every character that is not an ASCII letter or digit.
// Returns an empty string if nothing remains.
func NamespaceFor(documentID string) string {
	var b strings.Builder
	b.Grow(len(documentID))
	for i := 0; i < len(documentID); i++ {
		c := documentID[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// NamespaceStats describes a namespace in the vector index.
type NamespaceStats struct {
	// Exists is false when nothing has been upserted into the namespace.
	Exists bool

	// Count is the number of records in the namespace.
	Count int
}

// DocumentStats is the caller-facing view of an indexed document.
type DocumentStats struct {
	Exists     bool `json:"exists"`
	ChunkCount int  `json:"chunkCount"`
}

// DocumentRecord is the registry entry kept for every indexed document.
// It carries ownership and the batches that still need to be resumed.
type DocumentRecord struct {
	// ID is the document identifier.
	ID string

	// Owner is the identity that indexed the document. Empty means unowned.
	Owner string

	// ChunkCount is the number of chunks the document produced.
	ChunkCount int

	// BatchSize is the batch size used when the document was indexed.
	// Resuming must use the same size so batch membership is unchanged.
	BatchSize int

	// ChunkSize and ChunkOverlap are the chunking parameters of the last
	// index run, as passed to the chunker. Resume re-chunks with them.
	ChunkSize    int
	ChunkOverlap int

	// FailedBatches lists batch indices that exhausted their retries.
	FailedBatches []int

	// IndexedAt is when the document was last indexed.
	IndexedAt time.Time
}

// OwnedBy reports whether identity may access the document.
// An empty identity or an unowned record always passes.
func (r *DocumentRecord) OwnedBy(identity string) bool {
	if r == nil || identity == "" || r.Owner == "" {
		return true
	}
	return r.Owner == identity
}

// NeedsResume reports whether the document has failed batches.
func (r *DocumentRecord) NeedsResume() bool {
	return r != nil && len(r.FailedBatches) > 0
}
