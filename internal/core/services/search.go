package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// Structural search constants.
const (
	// StructuralScore is assigned to chunks surfaced by the chapter scanner.
	StructuralScore = 0.9

	// StructuralFallbackChunks is how many leading chunks are returned for a
	// structural query when no chapter chunk is found.
	StructuralFallbackChunks = 20
)

// SearchService answers queries against a single indexed document.
type SearchService struct {
	embedder driven.EmbeddingService
	vectors  *VectorStore
	scanner  *ChapterScanner
	reranker driven.Reranker
	registry driven.DocumentRegistry
}

// NewSearchService creates a new search service.
// The reranker and registry parameters are optional (can be nil).
// A nil scanner is replaced by one reading from vectors.
func NewSearchService(
	embedder driven.EmbeddingService,
	vectors *VectorStore,
	scanner *ChapterScanner,
	reranker driven.Reranker,
	registry driven.DocumentRegistry,
) *SearchService {
	if scanner == nil && vectors != nil {
		scanner = NewChapterScanner(vectors)
	}
	return &SearchService{
		embedder: embedder,
		vectors:  vectors,
		scanner:  scanner,
		reranker: reranker,
		registry: registry,
	}
}

// Search returns the passages of documentID most relevant to query.
func (s *SearchService) Search(
	ctx context.Context, documentID, query string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	logger.Section("Search Execution")
	logger.Debug("Document: %q, query: %q", documentID, query)

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", domain.ErrInvalidInput)
	}
	if _, err := namespace(documentID); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	ok, err := authorized(ctx, s.registry, documentID, opts.Identity)
	if err != nil {
		logger.Warn("Ownership check failed for %s: %v", documentID, err)
		return []domain.SearchResult{}, nil
	}
	if !ok {
		logger.Debug("Identity %q does not own %s", opts.Identity, documentID)
		return []domain.SearchResult{}, nil
	}

	if s.vectors == nil {
		logger.Warn("Search unavailable: %v", domain.ErrVectorIndexUnavailable)
		return []domain.SearchResult{}, nil
	}

	var results []domain.SearchResult
	switch {
	case IsStructural(query):
		logger.Info("Structural query, scanning for chapter chunks")
		results, err = s.structuralSearch(ctx, documentID, query, opts)
	case opts.SkipRerank || s.reranker == nil:
		logger.Debug("Similarity search (rerank skipped: %t, reranker available: %t)",
			opts.SkipRerank, s.reranker != nil)
		results, err = s.similaritySearch(ctx, documentID, query, opts.FinalTopK)
	default:
		results, err = s.rerankedSearch(ctx, documentID, query, opts)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("Search failed: %v", err)
		return []domain.SearchResult{}, nil
	}
	if results == nil {
		results = []domain.SearchResult{}
	}

	logger.Info("Final results: %d", len(results))
	return results, nil
}

// Chunks returns every chunk of a document in chunk order.
func (s *SearchService) Chunks(ctx context.Context, documentID, identity string) ([]domain.Chunk, error) {
	if _, err := namespace(documentID); err != nil {
		return nil, err
	}
	ok, err := authorized(ctx, s.registry, documentID, identity)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.Chunk{}, nil
	}
	if s.vectors == nil {
		return nil, domain.ErrVectorIndexUnavailable
	}

	records, err := s.vectors.GetAllChunks(ctx, documentID)
	if err != nil {
		return nil, err
	}
	chunks := make([]domain.Chunk, len(records))
	for i, rec := range records {
		chunks[i] = domain.Chunk{Text: rec.Metadata.ChunkText, Index: rec.Metadata.ChunkIndex}
	}
	return chunks, nil
}

// structuralSearch answers table-of-contents style queries. Results are in
// document order and never reranked.
func (s *SearchService) structuralSearch(
	ctx context.Context, documentID, query string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	chapters, err := s.scanner.FindChapterChunks(ctx, documentID, DefaultChapterScanLimit)
	if err != nil {
		return nil, err
	}

	if len(chapters) == 0 {
		logger.Debug("No chapter chunks found, returning the first %d chunks", StructuralFallbackChunks)
		records, err := s.vectors.FetchFirst(ctx, documentID, StructuralFallbackChunks)
		if err != nil {
			return nil, err
		}
		results := make([]domain.SearchResult, len(records))
		for i, rec := range records {
			results[i] = domain.SearchResult{
				Text:       rec.Metadata.ChunkText,
				Score:      StructuralScore,
				ChunkIndex: rec.Metadata.ChunkIndex,
			}
		}
		return results, nil
	}

	results := make([]domain.SearchResult, 0, len(chapters)+opts.FinalTopK)
	seen := make(map[int]bool, len(chapters))
	for _, ch := range chapters {
		seen[ch.ChunkIndex] = true
		results = append(results, domain.SearchResult{
			Text:       ch.Text,
			Score:      StructuralScore,
			ChunkIndex: ch.ChunkIndex,
		})
	}
	logger.Debug("Chapter scan: %d chunks", len(chapters))

	hits, err := s.similaritySearch(ctx, documentID, enhanceStructuralQuery(query), opts.FinalTopK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("Structural similarity search failed, using chapter chunks only: %v", err)
	}
	for _, hit := range hits {
		if seen[hit.ChunkIndex] {
			continue
		}
		seen[hit.ChunkIndex] = true
		results = append(results, hit)
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
	return results, nil
}

// similaritySearch embeds query and returns the topK nearest chunks.
func (s *SearchService) similaritySearch(
	ctx context.Context, documentID, query string, topK int,
) ([]domain.SearchResult, error) {
	matches, err := s.query(ctx, documentID, query, topK)
	if err != nil {
		return nil, err
	}
	return matchesToResults(matches, topK), nil
}

// rerankedSearch retrieves InitialTopK candidates and reorders them with the
// reranker. A reranker failure degrades to plain similarity order.
func (s *SearchService) rerankedSearch(
	ctx context.Context, documentID, query string, opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	matches, err := s.query(ctx, documentID, query, opts.InitialTopK)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}

	candidates := make([]domain.RerankCandidate, len(matches))
	for i, m := range matches {
		candidates[i] = domain.RerankCandidate{
			Text:       m.Metadata.ChunkText,
			ChunkIndex: m.Metadata.ChunkIndex,
			Score:      m.Score,
		}
	}

	logger.Debug("Reranking %d candidates with %s", len(candidates), s.reranker.ModelName())
	reranked, err := s.reranker.Rerank(ctx, query, candidates, opts.FinalTopK)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("Rerank failed, using similarity order: %v", err)
		return matchesToResults(matches, opts.FinalTopK), nil
	}

	results := make([]domain.SearchResult, 0, len(reranked))
	for _, r := range reranked {
		if r.RelevanceScore < opts.MinRelevanceScore {
			continue
		}
		results = append(results, domain.SearchResult{
			Text:           r.Candidate.Text,
			Score:          r.RelevanceScore,
			ChunkIndex:     r.Candidate.ChunkIndex,
			WasReranked:    true,
			RelevanceScore: r.RelevanceScore,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > opts.FinalTopK {
		results = results[:opts.FinalTopK]
	}

	logger.Debug("Rerank kept %d of %d candidates (min score %.2f)",
		len(results), len(reranked), opts.MinRelevanceScore)
	return results, nil
}

// query embeds text and runs a similarity query.
func (s *SearchService) query(ctx context.Context, documentID, text string, topK int) ([]domain.VectorMatch, error) {
	if s.embedder == nil {
		return nil, domain.ErrEmbeddingUnavailable
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	logger.Debug("Query embedding: %d dimensions", len(vector))

	matches, err := s.vectors.Query(ctx, documentID, vector, topK)
	if err != nil {
		return nil, err
	}
	logger.Debug("Similarity query: %d matches", len(matches))
	return matches, nil
}

// matchesToResults converts at most limit matches to unreranked results.
func matchesToResults(matches []domain.VectorMatch, limit int) []domain.SearchResult {
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	results := make([]domain.SearchResult, len(matches))
	for i, m := range matches {
		results[i] = domain.SearchResult{
			Text:       m.Metadata.ChunkText,
			Score:      m.Score,
			ChunkIndex: m.Metadata.ChunkIndex,
		}
	}
	return results
}
