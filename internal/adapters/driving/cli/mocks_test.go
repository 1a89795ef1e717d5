package cli

import (
	"context"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

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
	_ context.Context, documentID, _ string, opts domain.SearchOptions,
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
	mu       sync.Mutex
	result   *domain.IndexResult
	stats    domain.DocumentStats
	docs     []domain.DocumentRecord
	err      error
	calls    int
	resumed  bool
	lastText string
	lastID   string
	lastOpts domain.IndexOptions
	identity string
}

func (m *mockIndexService) IndexDocument(
	_ context.Context, documentID, text string, opts domain.IndexOptions,
) (*domain.IndexResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastID, m.lastText, m.lastOpts = documentID, text, opts
	if opts.Progress != nil && m.result != nil {
		opts.Progress <- domain.ProgressInfo{Seq: 1, CompletedBatches: 1, TotalBatches: 1, PercentComplete: 100}
	}
	return m.result, m.err
}

func (m *mockIndexService) ResumeDocument(
	_ context.Context, documentID, text string, opts domain.IndexOptions,
) (*domain.IndexResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.resumed = true
	m.lastID, m.lastText, m.lastOpts = documentID, text, opts
	return m.result, m.err
}

func (m *mockIndexService) DeleteDocumentVectors(_ context.Context, documentID, identity string) error {
	m.lastID, m.identity = documentID, identity
	return m.err
}

func (m *mockIndexService) GetDocumentStats(_ context.Context, documentID, identity string) (domain.DocumentStats, error) {
	m.lastID, m.identity = documentID, identity
	return m.stats, m.err
}

func (m *mockIndexService) ListDocuments(_ context.Context) ([]domain.DocumentRecord, error) {
	return m.docs, m.err
}

func (m *mockIndexService) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// mockSettingsService is a mock implementation of driving.SettingsService.
type mockSettingsService struct {
	settings *domain.AppSettings
	err      error
	setKey   string
	setValue string
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.settings == nil {
		s := domain.DefaultAppSettings()
		return &s, nil
	}
	return m.settings, nil
}

func (m *mockSettingsService) Set(key, value string) error {
	m.setKey, m.setValue = key, value
	return m.err
}

func (m *mockSettingsService) Keys() []string {
	return []string{"embedding.provider", "vector.backend"}
}

func (m *mockSettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

func (m *mockSettingsService) Path() string {
	return "/tmp/docindex/config.toml"
}

type testServices struct {
	search   *mockSearchService
	index    *mockIndexService
	settings *mockSettingsService
}

// setupTestServices installs mock services and returns them with a
// cleanup that restores the previous services and resets command flags.
func setupTestServices() (*testServices, func()) {
	prevSearch, prevIndex, prevSettings := searchService, indexService, settingsService
	prevBootstrap := bootstrap

	ts := &testServices{
		search:   &mockSearchService{},
		index:    &mockIndexService{},
		settings: &mockSettingsService{},
	}
	SetServices(&Services{Search: ts.search, Index: ts.index, Settings: ts.settings})
	bootstrap = nil

	return ts, func() {
		searchService, indexService, settingsService = prevSearch, prevIndex, prevSettings
		bootstrap = prevBootstrap
		resetFlags(rootCmd)
		rootCmd.SetArgs(nil)
	}
}

// resetFlags restores every flag of cmd and its children to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		// Map flags cannot be set back to empty; the variable is cleared below.
		if f.Value.Type() != "stringToString" {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
	indexMeta = nil
}
