package domain

import "time"

const unknownDescription = "Unknown"

// AIProvider identifies an embedding service provider.
type AIProvider string

// Available embedding providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API or a compatible endpoint.
	AIProviderOpenAI AIProvider = "openai"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// VectorBackend identifies a vector index implementation.
type VectorBackend string

// Available vector backends.
const (
	// VectorBackendMemory keeps vectors in process memory. Lost on exit.
	VectorBackendMemory VectorBackend = "memory"

	// VectorBackendSQLite stores vectors in the local SQLite database.
	VectorBackendSQLite VectorBackend = "sqlite"

	// VectorBackendQdrant stores vectors in a Qdrant server.
	VectorBackendQdrant VectorBackend = "qdrant"

	// VectorBackendPgvector stores vectors in Postgres with pgvector.
	VectorBackendPgvector VectorBackend = "pgvector"
)

// IsValid returns true if the backend is recognised.
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendMemory, VectorBackendSQLite, VectorBackendQdrant, VectorBackendPgvector:
		return true
	default:
		return false
	}
}

// IsRemote returns true if the backend talks to a separate server.
func (b VectorBackend) IsRemote() bool {
	return b == VectorBackendQdrant || b == VectorBackendPgvector
}

// Description returns a human-readable description of the backend.
func (b VectorBackend) Description() string {
	switch b {
	case VectorBackendMemory:
		return "Memory (ephemeral)"
	case VectorBackendSQLite:
		return "SQLite (local file)"
	case VectorBackendQdrant:
		return "Qdrant (server)"
	case VectorBackendPgvector:
		return "Postgres + pgvector (server)"
	default:
		return unknownDescription
	}
}

// RerankProvider identifies a reranking service.
type RerankProvider string

// Available rerank providers.
const (
	// RerankProviderNone disables reranking.
	RerankProviderNone RerankProvider = "none"

	// RerankProviderCohere uses a Cohere-compatible /rerank endpoint.
	RerankProviderCohere RerankProvider = "cohere"
)

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is resolved from the environment at load time. Never persisted.
	APIKey string

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string

	// Dimensions overrides the model's default vector size.
	Dimensions int

	// RequestsPerSecond bounds outbound embedding requests. Zero disables limiting.
	RequestsPerSecond float64

	// Burst is the token bucket size.
	Burst int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// VectorSettings holds vector index configuration.
type VectorSettings struct {
	// Backend selects the vector index implementation.
	Backend VectorBackend

	// DataDir is the directory for the SQLite database.
	DataDir string

	// URL is the server address for remote backends.
	URL string

	// APIKey is the Qdrant API key, resolved from the environment.
	APIKey string

	// DSN is the Postgres connection string.
	DSN string

	// MaxTopK is the largest result size the backend will return.
	MaxTopK int
}

// RerankSettings holds reranker configuration.
type RerankSettings struct {
	// Provider is the rerank service provider.
	Provider RerankProvider

	// Model is the rerank model name.
	Model string

	// BaseURL is the API endpoint.
	BaseURL string

	// APIKey is resolved from the environment at load time. Never persisted.
	APIKey string

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string
}

// IsConfigured returns true if a reranker should be created.
func (r RerankSettings) IsConfigured() bool {
	return r.Provider == RerankProviderCohere && r.APIKey != ""
}

// IndexingSettings holds defaults for indexing jobs.
type IndexingSettings struct {
	ChunkSize      int
	ChunkOverlap   int
	BatchSize      int
	Concurrency    int
	MaxRetries     int
	BaseRetryDelay time.Duration
}

// AppSettings holds all application settings.
type AppSettings struct {
	Embedding EmbeddingSettings
	Vector    VectorSettings
	Rerank    RerankSettings
	Indexing  IndexingSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// The embedding provider defaults to OpenAI but stays unconfigured until an API key is present.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider:          AIProviderOpenAI,
			Model:             DefaultEmbeddingModels()[AIProviderOpenAI],
			APIKeyEnv:         "OPENAI_API_KEY",
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Vector: VectorSettings{
			Backend: VectorBackendSQLite,
			MaxTopK: 10000,
		},
		Rerank: RerankSettings{
			Provider:  RerankProviderNone,
			Model:     "rerank-v3.5",
			APIKeyEnv: "COHERE_API_KEY",
		},
		Indexing: IndexingSettings{
			ChunkSize:      1000,
			ChunkOverlap:   200,
			BatchSize:      DefaultBatchSize,
			Concurrency:    DefaultConcurrency,
			MaxRetries:     DefaultMaxRetries,
			BaseRetryDelay: DefaultBaseRetryDelay,
		},
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
