package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driving"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// EnvPrefix prefixes environment overrides of config keys:
// "embedding.model" is overridden by DOCINDEX_EMBEDDING_MODEL.
const EnvPrefix = "DOCINDEX_"

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyEmbedProvider    = "embedding.provider"
	keyEmbedModel       = "embedding.model"
	keyEmbedBaseURL     = "embedding.base_url"
	keyEmbedAPIKeyEnv   = "embedding.api_key_env"
	keyEmbedDimensions  = "embedding.dimensions"
	keyEmbedRPS         = "embedding.requests_per_second"
	keyEmbedBurst       = "embedding.burst"
	keyVectorBackend    = "vector.backend"
	keyVectorDataDir    = "vector.data_dir"
	keyVectorURL        = "vector.url"
	keyVectorAPIKeyEnv  = "vector.api_key_env"
	keyVectorDSN        = "vector.dsn"
	keyVectorMaxTopK    = "vector.max_top_k"
	keyRerankProvider   = "rerank.provider"
	keyRerankModel      = "rerank.model"
	keyRerankBaseURL    = "rerank.base_url"
	keyRerankAPIKeyEnv  = "rerank.api_key_env"
	keyIndexChunkSize   = "indexing.chunk_size"
	keyIndexOverlap     = "indexing.chunk_overlap"
	keyIndexBatchSize   = "indexing.batch_size"
	keyIndexConcurrency = "indexing.concurrency"
	keyIndexMaxRetries  = "indexing.max_retries"
	keyIndexRetryDelay  = "indexing.base_retry_delay"
)

// defaultVectorAPIKeyEnv names the variable holding the Qdrant API key.
const defaultVectorAPIKeyEnv = "QDRANT_API_KEY"

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindDuration
	kindEmbedProvider
	kindVectorBackend
	kindRerankProvider
)

// settingKeys lists the settable keys in display order.
var settingKeys = []struct {
	key  string
	kind valueKind
}{
	{keyEmbedProvider, kindEmbedProvider},
	{keyEmbedModel, kindString},
	{keyEmbedBaseURL, kindString},
	{keyEmbedAPIKeyEnv, kindString},
	{keyEmbedDimensions, kindInt},
	{keyEmbedRPS, kindFloat},
	{keyEmbedBurst, kindInt},
	{keyVectorBackend, kindVectorBackend},
	{keyVectorDataDir, kindString},
	{keyVectorURL, kindString},
	{keyVectorAPIKeyEnv, kindString},
	{keyVectorDSN, kindString},
	{keyVectorMaxTopK, kindInt},
	{keyRerankProvider, kindRerankProvider},
	{keyRerankModel, kindString},
	{keyRerankBaseURL, kindString},
	{keyRerankAPIKeyEnv, kindString},
	{keyIndexChunkSize, kindInt},
	{keyIndexOverlap, kindInt},
	{keyIndexBatchSize, kindInt},
	{keyIndexConcurrency, kindInt},
	{keyIndexMaxRetries, kindInt},
	{keyIndexRetryDelay, kindDuration},
}

// SettingsService reads typed settings from the config store, layering
// DOCINDEX_* environment variables on top.
type SettingsService struct {
	configStore driven.ConfigStore
	getenv      func(string) string
}

// NewSettingsService creates a new settings service.
func NewSettingsService(configStore driven.ConfigStore) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		getenv:      os.Getenv,
	}
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	defaults := domain.DefaultAppSettings()

	settings := &domain.AppSettings{
		Embedding: domain.EmbeddingSettings{
			Provider:          domain.AIProvider(s.getString(keyEmbedProvider, string(defaults.Embedding.Provider))),
			BaseURL:           s.getString(keyEmbedBaseURL, ""),
			APIKeyEnv:         s.getString(keyEmbedAPIKeyEnv, defaults.Embedding.APIKeyEnv),
			Dimensions:        s.getInt(keyEmbedDimensions, defaults.Embedding.Dimensions),
			RequestsPerSecond: s.getFloat(keyEmbedRPS, defaults.Embedding.RequestsPerSecond),
			Burst:             s.getInt(keyEmbedBurst, defaults.Embedding.Burst),
		},
		Vector: domain.VectorSettings{
			Backend: domain.VectorBackend(s.getString(keyVectorBackend, string(defaults.Vector.Backend))),
			DataDir: s.getString(keyVectorDataDir, ""),
			URL:     s.getString(keyVectorURL, ""),
			DSN:     s.getString(keyVectorDSN, ""),
			MaxTopK: s.getInt(keyVectorMaxTopK, defaults.Vector.MaxTopK),
		},
		Rerank: domain.RerankSettings{
			Provider:  domain.RerankProvider(s.getString(keyRerankProvider, string(defaults.Rerank.Provider))),
			Model:     s.getString(keyRerankModel, defaults.Rerank.Model),
			BaseURL:   s.getString(keyRerankBaseURL, ""),
			APIKeyEnv: s.getString(keyRerankAPIKeyEnv, defaults.Rerank.APIKeyEnv),
		},
		Indexing: domain.IndexingSettings{
			ChunkSize:      s.getInt(keyIndexChunkSize, defaults.Indexing.ChunkSize),
			ChunkOverlap:   s.getInt(keyIndexOverlap, defaults.Indexing.ChunkOverlap),
			BatchSize:      s.getInt(keyIndexBatchSize, defaults.Indexing.BatchSize),
			Concurrency:    s.getInt(keyIndexConcurrency, defaults.Indexing.Concurrency),
			MaxRetries:     s.getInt(keyIndexMaxRetries, defaults.Indexing.MaxRetries),
			BaseRetryDelay: s.getDuration(keyIndexRetryDelay, defaults.Indexing.BaseRetryDelay),
		},
	}

	if !settings.Embedding.Provider.IsValid() {
		return nil, fmt.Errorf("%w: unknown embedding provider %q", domain.ErrInvalidInput, settings.Embedding.Provider)
	}
	if !settings.Vector.Backend.IsValid() {
		return nil, fmt.Errorf("%w: unknown vector backend %q", domain.ErrInvalidInput, settings.Vector.Backend)
	}

	// The model default follows the provider.
	settings.Embedding.Model = s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[settings.Embedding.Provider])

	if settings.Vector.DataDir == "" && s.configStore.Path() != "" {
		settings.Vector.DataDir = filepath.Dir(s.configStore.Path())
	}

	// API keys only ever come from the environment.
	if settings.Embedding.APIKeyEnv != "" {
		settings.Embedding.APIKey = s.getenv(settings.Embedding.APIKeyEnv)
	}
	if settings.Rerank.APIKeyEnv != "" {
		settings.Rerank.APIKey = s.getenv(settings.Rerank.APIKeyEnv)
	}
	if env := s.getString(keyVectorAPIKeyEnv, defaultVectorAPIKeyEnv); env != "" {
		settings.Vector.APIKey = s.getenv(env)
	}

	return settings, nil
}

// Set parses value for key and persists it.
func (s *SettingsService) Set(key, value string) error {
	kind, ok := lookupKind(key)
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}
	value = strings.TrimSpace(value)

	var typed any
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", domain.ErrInvalidInput, key)
		}
		typed = n
	case kindFloat:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", domain.ErrInvalidInput, key)
		}
		typed = f
	case kindDuration:
		d, err := time.ParseDuration(value)
		if err != nil || d < 0 {
			return fmt.Errorf("%w: %s must be a duration such as 1s or 500ms", domain.ErrInvalidInput, key)
		}
		typed = d.String()
	case kindEmbedProvider:
		if !domain.AIProvider(value).IsValid() {
			return fmt.Errorf("%w: invalid embedding provider %q", domain.ErrInvalidInput, value)
		}
		typed = value
	case kindVectorBackend:
		if !domain.VectorBackend(value).IsValid() {
			return fmt.Errorf("%w: invalid vector backend %q", domain.ErrInvalidInput, value)
		}
		typed = value
	case kindRerankProvider:
		if value != string(domain.RerankProviderNone) && value != string(domain.RerankProviderCohere) {
			return fmt.Errorf("%w: invalid rerank provider %q", domain.ErrInvalidInput, value)
		}
		typed = value
	default:
		typed = value
	}

	if err := s.configStore.Set(key, typed); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Keys returns the settable keys in display order.
func (s *SettingsService) Keys() []string {
	keys := make([]string, len(settingKeys))
	for i, k := range settingKeys {
		keys[i] = k.key
	}
	return keys
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// Path returns the configuration file path.
func (s *SettingsService) Path() string {
	return s.configStore.Path()
}

func lookupKind(key string) (valueKind, bool) {
	for _, k := range settingKeys {
		if k.key == key {
			return k.kind, true
		}
	}
	return 0, false
}

// envKey maps a config key to its environment override.
func envKey(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Helper methods for reading config with defaults.

func (s *SettingsService) getString(key, defaultVal string) string {
	if v := s.getenv(envKey(key)); v != "" {
		return v
	}
	val := s.configStore.GetString(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if v := s.getenv(envKey(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	val := s.configStore.GetInt(key)
	if val == 0 {
		return defaultVal
	}
	return val
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if v := s.getenv(envKey(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	val, ok := s.configStore.Get(key)
	if !ok {
		return defaultVal
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(s.getString(key, ""))
	if err != nil {
		return defaultVal
	}
	return d
}
