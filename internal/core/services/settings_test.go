package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// pathStore is a memory config store that reports a file path.
type pathStore struct {
	*memory.ConfigStore
	path string
}

func (s pathStore) Path() string { return s.path }

func newSettings(values map[string]any, env map[string]string) *SettingsService {
	svc := NewSettingsService(memory.NewConfigStore(values))
	svc.getenv = func(k string) string { return env[k] }
	return svc
}

func TestSettingsService_Get_ReturnsDefaults(t *testing.T) {
	svc := newSettings(nil, nil)

	settings, err := svc.Get()

	require.NoError(t, err)
	defaults := domain.DefaultAppSettings()
	assert.Equal(t, defaults.Embedding.Provider, settings.Embedding.Provider)
	assert.Equal(t, defaults.Embedding.Model, settings.Embedding.Model)
	assert.Equal(t, defaults.Vector.Backend, settings.Vector.Backend)
	assert.Equal(t, defaults.Rerank.Provider, settings.Rerank.Provider)
	assert.Equal(t, defaults.Indexing, settings.Indexing)
	assert.Empty(t, settings.Embedding.APIKey)
	assert.Empty(t, settings.Vector.DataDir)
}

func TestSettingsService_Get_ReturnsStoredValues(t *testing.T) {
	svc := newSettings(map[string]any{
		"embedding.provider":            "ollama",
		"embedding.base_url":            "http://gpu-box:11434",
		"embedding.requests_per_second": 2.5,
		"vector.backend":                "qdrant",
		"vector.url":                    "http://qdrant:6333",
		"indexing.batch_size":           int64(50),
		"indexing.base_retry_delay":     "250ms",
	}, nil)

	settings, err := svc.Get()

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOllama, settings.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", settings.Embedding.Model, "model default follows the provider")
	assert.Equal(t, "http://gpu-box:11434", settings.Embedding.BaseURL)
	assert.Equal(t, domain.VectorBackendQdrant, settings.Vector.Backend)
	assert.Equal(t, "http://qdrant:6333", settings.Vector.URL)
	assert.Equal(t, 50, settings.Indexing.BatchSize)
	assert.Equal(t, 250*time.Millisecond, settings.Indexing.BaseRetryDelay)
	assert.InDelta(t, 2.5, settings.Embedding.RequestsPerSecond, 1e-9)
}

func TestSettingsService_Get_EnvironmentOverrides(t *testing.T) {
	svc := newSettings(
		map[string]any{"indexing.concurrency": 2, "embedding.model": "stored-model"},
		map[string]string{
			"DOCINDEX_INDEXING_CONCURRENCY":          "8",
			"DOCINDEX_EMBEDDING_MODEL":               "text-embedding-3-large",
			"DOCINDEX_EMBEDDING_REQUESTS_PER_SECOND": "0.5",
			"DOCINDEX_INDEXING_MAX_RETRIES":          "not-a-number",
		},
	)

	settings, err := svc.Get()

	require.NoError(t, err)
	assert.Equal(t, 8, settings.Indexing.Concurrency)
	assert.Equal(t, "text-embedding-3-large", settings.Embedding.Model)
	assert.InDelta(t, 0.5, settings.Embedding.RequestsPerSecond, 1e-9)
	assert.Equal(t, domain.DefaultMaxRetries, settings.Indexing.MaxRetries)
}

func TestSettingsService_Get_APIKeysFromEnvironment(t *testing.T) {
	svc := newSettings(
		map[string]any{"rerank.api_key_env": "MY_RERANK_KEY"},
		map[string]string{
			"OPENAI_API_KEY": "sk-test",
			"MY_RERANK_KEY":  "co-test",
			"QDRANT_API_KEY": "qd-test",
		},
	)

	settings, err := svc.Get()

	require.NoError(t, err)
	assert.Equal(t, "sk-test", settings.Embedding.APIKey)
	assert.Equal(t, "co-test", settings.Rerank.APIKey)
	assert.Equal(t, "qd-test", settings.Vector.APIKey)
	assert.True(t, settings.Embedding.IsConfigured())
}

func TestSettingsService_Get_InvalidValues(t *testing.T) {
	_, err := newSettings(map[string]any{"embedding.provider": "palm"}, nil).Get()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = newSettings(nil, map[string]string{"DOCINDEX_VECTOR_BACKEND": "faiss"}).Get()
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsService_Get_DataDirFromConfigPath(t *testing.T) {
	store := pathStore{ConfigStore: memory.NewConfigStore(), path: "/home/user/.docindex/config.toml"}
	svc := NewSettingsService(store)
	svc.getenv = func(string) string { return "" }

	settings, err := svc.Get()

	require.NoError(t, err)
	assert.Equal(t, "/home/user/.docindex", settings.Vector.DataDir)
	assert.Equal(t, "/home/user/.docindex/config.toml", svc.Path())
}

func TestSettingsService_Set(t *testing.T) {
	store := memory.NewConfigStore()
	svc := NewSettingsService(store)

	tests := []struct {
		key   string
		value string
		want  any
	}{
		{"embedding.provider", "ollama", "ollama"},
		{"embedding.model", " mxbai-embed-large ", "mxbai-embed-large"},
		{"indexing.batch_size", "64", 64},
		{"embedding.requests_per_second", "1.5", 1.5},
		{"indexing.base_retry_delay", "1500ms", "1.5s"},
		{"vector.backend", "pgvector", "pgvector"},
		{"rerank.provider", "cohere", "cohere"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, svc.Set(tt.key, tt.value))
			got, ok := store.Get(tt.key)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSettingsService_Set_Rejects(t *testing.T) {
	svc := NewSettingsService(memory.NewConfigStore())

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown key", "search.mode", "hybrid"},
		{"negative int", "indexing.batch_size", "-1"},
		{"not an int", "indexing.concurrency", "many"},
		{"bad float", "embedding.requests_per_second", "fast"},
		{"bad duration", "indexing.base_retry_delay", "soon"},
		{"bad provider", "embedding.provider", "palm"},
		{"bad backend", "vector.backend", "faiss"},
		{"bad reranker", "rerank.provider", "jina"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, svc.Set(tt.key, tt.value), domain.ErrInvalidInput)
		})
	}
}

func TestSettingsService_Keys(t *testing.T) {
	svc := NewSettingsService(memory.NewConfigStore())

	keys := svc.Keys()

	assert.Equal(t, "embedding.provider", keys[0])
	assert.Contains(t, keys, "vector.dsn")
	assert.Contains(t, keys, "indexing.base_retry_delay")
	for _, k := range keys {
		_, ok := lookupKind(k)
		assert.True(t, ok, k)
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "DOCINDEX_EMBEDDING_MODEL", envKey("embedding.model"))
	assert.Equal(t, "DOCINDEX_VECTOR_MAX_TOP_K", envKey("vector.max_top_k"))
}
