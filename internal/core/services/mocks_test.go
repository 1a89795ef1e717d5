package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// --- Mock implementations ---

// mockEmbeddingService implements driven.EmbeddingService for testing.
// Vectors come from the vectors map, or are derived from the text.
type mockEmbeddingService struct {
	mu       sync.Mutex
	vectors  map[string][]float32
	failures map[string]int // text -> remaining failures
	embedErr error          // returned by every call when set
	delay    time.Duration

	batchCalls atomic.Int32
	embedCalls atomic.Int32
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
	embedded   []string
}

func newMockEmbedder() *mockEmbeddingService {
	return &mockEmbeddingService{
		vectors:  make(map[string][]float32),
		failures: make(map[string]int),
	}
}

// failText makes batches containing text fail n times.
func (m *mockEmbeddingService) failText(text string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[text] = n
}

func (m *mockEmbeddingService) vectorFor(text string) []float32 {
	if v, ok := m.vectors[text]; ok {
		return v
	}
	var sum, vowels float32
	for _, r := range text {
		sum += float32(r % 17)
		if strings.ContainsRune("aeiou", r) {
			vowels++
		}
	}
	return []float32{float32(len(text)%13) + 1, sum + 1, vowels + 1, 1}
}

func (m *mockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	m.embedCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vectorFor(text), nil
}

func (m *mockEmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batchCalls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		peak := m.maxFlight.Load()
		if n <= peak || m.maxFlight.CompareAndSwap(peak, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.embedErr != nil {
		return nil, m.embedErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range texts {
		if m.failures[t] > 0 {
			m.failures[t]--
			return nil, errors.New("upstream unavailable")
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vectorFor(t)
	}
	m.embedded = append(m.embedded, texts...)
	return out, nil
}

func (m *mockEmbeddingService) embeddedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.embedded...)
}

func (m *mockEmbeddingService) Dimensions() int              { return 4 }
func (m *mockEmbeddingService) ModelName() string            { return "mock-embed" }
func (m *mockEmbeddingService) Ping(_ context.Context) error { return nil }
func (m *mockEmbeddingService) Close() error                 { return nil }

// mockReranker implements driven.Reranker for testing.
// Relevance scores are looked up by chunk index.
type mockReranker struct {
	scores map[int]float64
	err    error

	calls    int
	lastTopN int
}

func (m *mockReranker) Rerank(_ context.Context, _ string, candidates []domain.RerankCandidate, topN int) ([]domain.RerankedResult, error) {
	m.calls++
	m.lastTopN = topN
	if m.err != nil {
		return nil, m.err
	}
	out := make([]domain.RerankedResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.RerankedResult{Candidate: c, RelevanceScore: m.scores[c.ChunkIndex]})
	}
	// Unsorted and untruncated: the service must order and cut results itself.
	return out, nil
}

func (m *mockReranker) ModelName() string { return "mock-rerank" }
func (m *mockReranker) Close() error      { return nil }

// mockChunker implements driven.Chunker by splitting on blank lines.
type mockChunker struct{}

func (mockChunker) Name() string { return "mock" }

func (mockChunker) Chunk(text string, _, _ int) []domain.Chunk {
	var chunks []domain.Chunk
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{Text: part, Index: len(chunks)})
	}
	return chunks
}

// failingIndex wraps a vector index and fails chosen operations.
type failingIndex struct {
	driven.VectorIndex
	upsertErr error
	queryErr  error

	upsertCalls atomic.Int32
	maxBatch    atomic.Int32
}

func (f *failingIndex) Upsert(ctx context.Context, ns string, records []domain.EmbeddingRecord) error {
	f.upsertCalls.Add(1)
	if n := int32(len(records)); n > f.maxBatch.Load() {
		f.maxBatch.Store(n)
	}
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.VectorIndex.Upsert(ctx, ns, records)
}

func (f *failingIndex) Query(ctx context.Context, ns string, vector []float32, topK int) ([]domain.VectorMatch, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.VectorIndex.Query(ctx, ns, vector, topK)
}

// queryOnlyIndex hides NamespaceScanner so listing goes through Query.
type queryOnlyIndex struct {
	driven.VectorIndex
}

// noSleep replaces RetryPolicy.sleep and records the waits.
type noSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (n *noSleep) sleep(ctx context.Context, d time.Duration) error {
	n.mu.Lock()
	n.waits = append(n.waits, d)
	n.mu.Unlock()
	return ctx.Err()
}

// testPolicy retries once without sleeping.
func testPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		sleep:      func(ctx context.Context, _ time.Duration) error { return ctx.Err() },
	}
}

// textChunks builds n chunks "chunk-0" .. "chunk-(n-1)".
func textChunks(n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{Text: "chunk-" + strconv.Itoa(i), Index: i}
	}
	return chunks
}
