package domain

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider or backend type.
	ErrUnsupportedType = errors.New("unsupported type")

	// Indexing Errors.

	// ErrEmptyDocument indicates the document text is empty or whitespace.
	ErrEmptyDocument = fmt.Errorf("%w: empty document text", ErrInvalidInput)

	// ErrNoChunks indicates chunking produced nothing to embed.
	ErrNoChunks = fmt.Errorf("%w: no chunks generated", ErrInvalidInput)

	// ErrNamespaceTaken indicates a different document ID already maps to
	// the same vector namespace.
	ErrNamespaceTaken = fmt.Errorf("%w: namespace already used by another document", ErrInvalidInput)

	// ErrIndexInProgress indicates the document is already being indexed.
	ErrIndexInProgress = errors.New("index in progress")

	// Service Errors.

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	// Indexing and search are disabled without embeddings.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not configured.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrRerankerUnavailable indicates the reranker is not configured.
	// Search falls back to similarity-only ranking.
	ErrRerankerUnavailable = errors.New("reranker unavailable")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrForbidden indicates the caller does not own the document.
	ErrForbidden = errors.New("forbidden")
)

// RateLimitError is returned by adapters when a service answers HTTP 429.
// It unwraps to ErrRateLimited.
type RateLimitError struct {
	// RetryAfter is the server-requested wait. Zero if unspecified.
	RetryAfter time.Duration

	// Err is the underlying error, if any.
	Err error
}

func (e *RateLimitError) Error() string {
	msg := "rate limited"
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the sentinel and the underlying error.
func (e *RateLimitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRateLimited}
	}
	return []error{ErrRateLimited, e.Err}
}
