package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

type searchFixture struct {
	embedder *mockEmbeddingService
	store    *VectorStore
	registry *memory.DocumentRegistry
	reranker *mockReranker
	svc      *SearchService
}

func newSearchFixture(withReranker bool) *searchFixture {
	f := &searchFixture{
		embedder: newMockEmbedder(),
		store:    NewVectorStore(memory.NewVectorIndex()),
		registry: memory.NewDocumentRegistry(),
	}
	if withReranker {
		f.reranker = &mockReranker{scores: map[int]float64{}}
		f.svc = NewSearchService(f.embedder, f.store, nil, f.reranker, f.registry)
	} else {
		f.svc = NewSearchService(f.embedder, f.store, nil, nil, f.registry)
	}
	return f
}

// index stores texts as chunks 0..n-1 of documentID using the mock's vectors.
func (f *searchFixture) index(t *testing.T, documentID string, texts []string) {
	t.Helper()
	recs := make([]domain.EmbeddingRecord, len(texts))
	for i, text := range texts {
		recs[i] = domain.EmbeddingRecord{
			ID:     domain.ChunkRecordID(documentID, i),
			Vector: f.embedder.vectorFor(text),
			Metadata: domain.RecordMetadata{
				DocumentID: documentID,
				ChunkIndex: i,
				ChunkText:  text,
			},
		}
	}
	require.NoError(t, f.store.Upsert(context.Background(), documentID, recs))
}

// rankedTexts creates n chunks whose similarity to the query "q" falls with
// the chunk index.
func (f *searchFixture) rankedTexts(n int) []string {
	f.embedder.vectors["q"] = []float32{1, 0, 0, 0}
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("passage %d", i)
		f.embedder.vectors[texts[i]] = []float32{1, float32(i) * 0.5, 0, 0}
	}
	return texts
}

func TestSearch_InvalidInput(t *testing.T) {
	f := newSearchFixture(false)

	_, err := f.svc.Search(context.Background(), "doc", "   ", domain.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.Search(context.Background(), "!!!", "query", domain.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSearch_SimilarityOnly(t *testing.T) {
	f := newSearchFixture(false)
	f.index(t, "doc", f.rankedTexts(10))

	results, err := f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{FinalTopK: 3})

	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i, r.ChunkIndex)
		assert.False(t, r.WasReranked)
		assert.Zero(t, r.RelevanceScore)
	}
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestSearch_Reranked(t *testing.T) {
	f := newSearchFixture(true)
	f.index(t, "doc", f.rankedTexts(10))
	f.reranker.scores = map[int]float64{0: 0.2, 1: 0.9, 2: 0.05, 3: 0.6, 4: 0.7}

	results, err := f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{
		InitialTopK:       5,
		FinalTopK:         3,
		MinRelevanceScore: 0.1,
	})

	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int{1, 4, 3}, []int{results[0].ChunkIndex, results[1].ChunkIndex, results[2].ChunkIndex})
	for i, r := range results {
		assert.True(t, r.WasReranked)
		assert.Equal(t, r.RelevanceScore, r.Score)
		if i > 0 {
			assert.LessOrEqual(t, r.RelevanceScore, results[i-1].RelevanceScore)
		}
	}
	assert.Equal(t, 1, f.reranker.calls)
	assert.Equal(t, 3, f.reranker.lastTopN)
}

func TestSearch_RerankMinScoreFilter(t *testing.T) {
	f := newSearchFixture(true)
	f.index(t, "doc", f.rankedTexts(6))
	f.reranker.scores = map[int]float64{0: 0.2, 1: 0.9, 2: 0.05, 3: 0.6, 4: 0.7, 5: 0.66}

	results, err := f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{
		InitialTopK:       6,
		FinalTopK:         5,
		MinRelevanceScore: 0.65,
	})

	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.RelevanceScore, 0.65)
	}
}

func TestSearch_RerankFailureFallsBack(t *testing.T) {
	f := newSearchFixture(true)
	f.index(t, "doc", f.rankedTexts(8))
	f.reranker.err = errors.New("rerank service down")

	results, err := f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{InitialTopK: 8, FinalTopK: 4})

	require.NoError(t, err)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, i, r.ChunkIndex)
		assert.False(t, r.WasReranked)
	}
}

func TestSearch_SkipRerank(t *testing.T) {
	f := newSearchFixture(true)
	f.index(t, "doc", f.rankedTexts(5))

	results, err := f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{SkipRerank: true, FinalTopK: 2})

	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Zero(t, f.reranker.calls)
}

func TestSearch_EmbeddingFailureDegrades(t *testing.T) {
	f := newSearchFixture(false)
	f.index(t, "doc", f.rankedTexts(3))
	f.embedder.embedErr = errors.New("embedding service down")

	results, err := f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{})

	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSearch_NoEmbedder(t *testing.T) {
	store := NewVectorStore(memory.NewVectorIndex())
	svc := NewSearchService(nil, store, nil, nil, nil)

	results, err := svc.Search(context.Background(), "doc", "q", domain.SearchOptions{})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_CancelledContext(t *testing.T) {
	f := newSearchFixture(false)
	f.index(t, "doc", f.rankedTexts(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Search(ctx, "doc", "q", domain.SearchOptions{})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearch_Ownership(t *testing.T) {
	f := newSearchFixture(false)
	f.index(t, "doc", f.rankedTexts(3))
	require.NoError(t, f.registry.Save(context.Background(), domain.DocumentRecord{ID: "doc", Owner: "alice"}))

	results, err := f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{Identity: "bob"})
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{Identity: "alice"})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = f.svc.Search(context.Background(), "doc", "q", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_NamespaceIsolation(t *testing.T) {
	f := newSearchFixture(false)
	f.index(t, "doc-a", f.rankedTexts(4))
	f.index(t, "doc-b", []string{"unrelated text"})

	results, err := f.svc.Search(context.Background(), "doc-b", "q", domain.SearchOptions{FinalTopK: 10})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "unrelated text", results[0].Text)
}

func TestSearch_TableOfContentsScenario(t *testing.T) {
	f := newSearchFixture(true)
	texts := make([]string, 30)
	texts[0] = "Table of Contents\n1. Introduction\n2. Cells\n3. Energy"
	for i := 1; i < len(texts); i++ {
		texts[i] = fmt.Sprintf("Paragraph %d discusses how cells store energy.", i)
	}
	f.index(t, "biology", texts)

	results, err := f.svc.Search(context.Background(), "biology", "What chapters does this book have?", domain.SearchOptions{})

	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 0, results[0].ChunkIndex)
	assert.InDelta(t, StructuralScore, results[0].Score, 1e-9)
	for i, r := range results {
		assert.False(t, r.WasReranked)
		if i > 0 {
			assert.Greater(t, r.ChunkIndex, results[i-1].ChunkIndex, "document order")
		}
	}
	assert.Zero(t, f.reranker.calls)
}

func TestSearch_StructuralFallback(t *testing.T) {
	f := newSearchFixture(false)
	texts := make([]string, 25)
	for i := range texts {
		texts[i] = fmt.Sprintf("Plain passage number %d.", i)
	}
	f.index(t, "doc", texts)

	results, err := f.svc.Search(context.Background(), "doc", "give me an outline", domain.SearchOptions{})

	require.NoError(t, err)
	require.Len(t, results, StructuralFallbackChunks)
	for i, r := range results {
		assert.Equal(t, i, r.ChunkIndex)
		assert.InDelta(t, StructuralScore, r.Score, 1e-9)
	}
}

func TestSearchService_Chunks(t *testing.T) {
	f := newSearchFixture(false)
	f.index(t, "doc", []string{"zero", "one", "two"})
	require.NoError(t, f.registry.Save(context.Background(), domain.DocumentRecord{ID: "doc", Owner: "alice"}))

	chunks, err := f.svc.Chunks(context.Background(), "doc", "alice")
	require.NoError(t, err)
	assert.Equal(t, []domain.Chunk{{Text: "zero", Index: 0}, {Text: "one", Index: 1}, {Text: "two", Index: 2}}, chunks)

	chunks, err = f.svc.Chunks(context.Background(), "doc", "mallory")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
