package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results  []domain.SearchResult
	chunks   []domain.Chunk
	err      error
	lastDoc  string
	lastOpts domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	documentID, _ string,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.lastDoc = documentID
	m.lastOpts = opts
	return m.results, m.err
}

func (m *mockSearchService) Chunks(_ context.Context, documentID, _ string) ([]domain.Chunk, error) {
	m.lastDoc = documentID
	return m.chunks, m.err
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	result   *domain.IndexResult
	stats    domain.DocumentStats
	err      error
	resumed  bool
	deleted  string
	lastOpts domain.IndexOptions
}

func (m *mockIndexService) IndexDocument(
	_ context.Context, _, _ string, opts domain.IndexOptions,
) (*domain.IndexResult, error) {
	m.lastOpts = opts
	return m.result, m.err
}

func (m *mockIndexService) ResumeDocument(
	_ context.Context, _, _ string, opts domain.IndexOptions,
) (*domain.IndexResult, error) {
	m.resumed = true
	m.lastOpts = opts
	return m.result, m.err
}

func (m *mockIndexService) DeleteDocumentVectors(_ context.Context, documentID, _ string) error {
	m.deleted = documentID
	return m.err
}

func (m *mockIndexService) GetDocumentStats(_ context.Context, _, _ string) (domain.DocumentStats, error) {
	return m.stats, m.err
}

func (m *mockIndexService) ListDocuments(_ context.Context) ([]domain.DocumentRecord, error) {
	return nil, m.err
}
