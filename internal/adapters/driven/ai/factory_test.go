package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/embedding/ratelimit"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/rerank/cohere"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

func TestInitResult_Close(t *testing.T) {
	t.Run("close with nil services", func(t *testing.T) {
		result := &InitResult{}
		// Should not panic
		result.Close()
	})
}

func TestCreateEmbeddingService(t *testing.T) {
	tests := []struct {
		name        string
		settings    *domain.EmbeddingSettings
		wantErr     error
		wantLimited bool
	}{
		{
			name:     "nil settings",
			settings: nil,
			wantErr:  domain.ErrEmbeddingUnavailable,
		},
		{
			name:     "openai without key",
			settings: &domain.EmbeddingSettings{Provider: domain.AIProviderOpenAI},
			wantErr:  domain.ErrEmbeddingUnavailable,
		},
		{
			name: "ollama provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOllama,
				BaseURL:  "http://localhost:11434",
				Model:    "nomic-embed-text",
			},
		},
		{
			name: "openai provider creates service",
			settings: &domain.EmbeddingSettings{
				Provider: domain.AIProviderOpenAI,
				APIKey:   "test-key",
				Model:    "text-embedding-3-small",
			},
		},
		{
			name: "rate limit wraps service",
			settings: &domain.EmbeddingSettings{
				Provider:          domain.AIProviderOpenAI,
				APIKey:            "test-key",
				Model:             "text-embedding-3-small",
				RequestsPerSecond: 2,
				Burst:             2,
			},
			wantLimited: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := CreateEmbeddingService(tt.settings)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, svc)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, svc)
			defer svc.Close()

			assert.Equal(t, tt.settings.Model, svc.ModelName())
			_, limited := svc.(*ratelimit.EmbeddingService)
			assert.Equal(t, tt.wantLimited, limited)
		})
	}
}

func TestCreateOllamaEmbedding_Dimensions(t *testing.T) {
	tests := []struct {
		name     string
		settings domain.EmbeddingSettings
		want     int
	}{
		{
			name:     "known model",
			settings: domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "mxbai-embed-large"},
			want:     domain.EmbeddingDimensions()["mxbai-embed-large"],
		},
		{
			name:     "unknown model falls back",
			settings: domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "custom"},
			want:     768,
		},
		{
			name:     "explicit override",
			settings: domain.EmbeddingSettings{Provider: domain.AIProviderOllama, Model: "custom", Dimensions: 384},
			want:     384,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := createOllamaEmbedding(&tt.settings)
			assert.Equal(t, tt.want, svc.Dimensions())
		})
	}
}

func TestCreateAndValidateEmbeddingService(t *testing.T) {
	t.Run("unconfigured returns nil", func(t *testing.T) {
		svc, err := CreateAndValidateEmbeddingService(context.Background(), &domain.EmbeddingSettings{})
		assert.NoError(t, err)
		assert.Nil(t, svc)
	})

	t.Run("reachable server", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"models": []}`))
		}))
		defer srv.Close()

		svc, err := CreateAndValidateEmbeddingService(context.Background(), &domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			BaseURL:  srv.URL,
			Model:    "nomic-embed-text",
		})

		require.NoError(t, err)
		require.NotNil(t, svc)
		svc.Close()
	})

	t.Run("unreachable server", func(t *testing.T) {
		svc, err := CreateAndValidateEmbeddingService(context.Background(), &domain.EmbeddingSettings{
			Provider: domain.AIProviderOllama,
			BaseURL:  "http://127.0.0.1:1",
			Model:    "nomic-embed-text",
		})

		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Contains(t, err.Error(), "unreachable")
		assert.Nil(t, svc)
	})
}

func TestValidateEmbeddingConfig(t *testing.T) {
	err := ValidateEmbeddingConfig(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	err = ValidateEmbeddingConfig(context.Background(), &domain.EmbeddingSettings{
		Provider: domain.AIProviderOllama,
		BaseURL:  "http://127.0.0.1:1",
	})
	assert.Error(t, err)
}

func TestCreateReranker(t *testing.T) {
	tests := []struct {
		name     string
		settings *domain.RerankSettings
		wantNil  bool
		wantErr  bool
	}{
		{name: "nil settings", settings: nil, wantNil: true},
		{name: "disabled", settings: &domain.RerankSettings{Provider: domain.RerankProviderNone}, wantNil: true},
		{
			name:     "cohere without key",
			settings: &domain.RerankSettings{Provider: domain.RerankProviderCohere, APIKeyEnv: "COHERE_API_KEY"},
			wantErr:  true,
		},
		{
			name:     "cohere with key",
			settings: &domain.RerankSettings{Provider: domain.RerankProviderCohere, APIKey: "k", Model: "rerank-v3.5"},
		},
		{
			name:     "unknown provider",
			settings: &domain.RerankSettings{Provider: "voyage"},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, err := CreateReranker(tt.settings)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, rr)
				return
			}
			assert.IsType(t, &cohere.Reranker{}, rr)
		})
	}
}

func TestCreateVectorStore(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := CreateVectorStore(context.Background(), &domain.VectorSettings{Backend: domain.VectorBackendMemory})
		require.NoError(t, err)
		defer store.Close()

		assert.IsType(t, &memory.VectorIndex{}, store.Index)
		assert.IsType(t, &memory.DocumentRegistry{}, store.Registry)
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := CreateVectorStore(context.Background(), &domain.VectorSettings{
			Backend: domain.VectorBackendSQLite,
			DataDir: t.TempDir(),
		})
		require.NoError(t, err)
		defer store.Close()

		assert.NotNil(t, store.Index)
		assert.NotNil(t, store.Registry)
	})

	t.Run("qdrant keeps registry locally", func(t *testing.T) {
		store, err := CreateVectorStore(context.Background(), &domain.VectorSettings{
			Backend: domain.VectorBackendQdrant,
			URL:     "http://localhost:6333",
			DataDir: t.TempDir(),
		})
		require.NoError(t, err)
		defer store.Close()

		assert.IsType(t, &qdrant.Index{}, store.Index)
		assert.NotNil(t, store.Registry)
	})

	t.Run("pgvector requires dsn", func(t *testing.T) {
		_, err := CreateVectorStore(context.Background(), &domain.VectorSettings{Backend: domain.VectorBackendPgvector})
		assert.ErrorIs(t, err, domain.ErrVectorIndexUnavailable)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := CreateVectorStore(context.Background(), &domain.VectorSettings{Backend: "faiss"})
		assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	})
}

func TestInit(t *testing.T) {
	settings := domain.DefaultAppSettings()
	settings.Vector.Backend = domain.VectorBackendMemory
	settings.Embedding.APIKey = ""
	settings.Rerank.Provider = domain.RerankProviderCohere

	result, err := Init(context.Background(), &settings)
	require.NoError(t, err)
	defer result.Close()

	assert.NotNil(t, result.VectorIndex)
	assert.NotNil(t, result.Registry)
	assert.Nil(t, result.EmbeddingService)
	assert.Nil(t, result.Reranker)
	assert.Len(t, result.Warnings, 2)
}

func TestInit_NilSettings(t *testing.T) {
	_, err := Init(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
