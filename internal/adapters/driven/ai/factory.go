// Package ai provides factory functions for creating the embedding, rerank and
// vector storage adapters from application settings.
package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	ollamaembed "github.com/custodia-labs/sercha-docindex/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/sercha-docindex/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/embedding/ratelimit"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/rerank/cohere"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// InitResult contains the result of adapter initialisation.
type InitResult struct {
	EmbeddingService driven.EmbeddingService
	Reranker         driven.Reranker
	VectorIndex      driven.VectorIndex
	Registry         driven.DocumentRegistry
	Warnings         []string // Non-fatal issues that disabled a service.

	closeStore func() error
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		r.EmbeddingService.Close()
	}
	if r.Reranker != nil {
		r.Reranker.Close()
	}
	if r.closeStore != nil {
		if err := r.closeStore(); err != nil {
			logger.Warn("closing vector store: %v", err)
		}
	}
}

// Init builds every adapter the services need. A vector store failure is
// fatal. Embedding and rerank failures are recorded as warnings and leave the
// service nil, so the caller can still run settings commands.
func Init(ctx context.Context, settings *domain.AppSettings) (*InitResult, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: nil settings", domain.ErrInvalidInput)
	}

	result := &InitResult{}

	store, err := CreateVectorStore(ctx, &settings.Vector)
	if err != nil {
		return nil, err
	}
	result.VectorIndex = store.Index
	result.Registry = store.Registry
	result.closeStore = store.Close

	embedder, err := CreateAndValidateEmbeddingService(ctx, &settings.Embedding)
	switch {
	case err != nil:
		result.Warnings = append(result.Warnings, err.Error())
	case embedder == nil:
		result.Warnings = append(result.Warnings, fmt.Sprintf(
			"%s: set %s or run 'docindex settings set embedding.provider ollama'",
			domain.ErrEmbeddingUnavailable, settings.Embedding.APIKeyEnv))
	default:
		result.EmbeddingService = embedder
	}

	reranker, err := CreateReranker(&settings.Rerank)
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", domain.ErrRerankerUnavailable, err))
	} else {
		result.Reranker = reranker
	}

	for _, w := range result.Warnings {
		logger.Warn("%s", w)
	}

	return result, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns nil without error when the provider is not configured.
func CreateAndValidateEmbeddingService(ctx context.Context, settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, nil
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. Run 'docindex settings show' to check configuration",
			domain.ErrEmbeddingUnavailable, err)
	}

	if err := ping(ctx, svc); err != nil {
		svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). Run 'docindex settings show' to check configuration",
			domain.ErrEmbeddingUnavailable, err)
	}

	return svc, nil
}

// ValidateEmbeddingConfig creates a service from settings and pings it.
func ValidateEmbeddingConfig(ctx context.Context, settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return domain.ErrEmbeddingUnavailable
	}

	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return err
	}
	defer svc.Close()

	return ping(ctx, svc)
}

// CreateEmbeddingService creates the embedding service named by settings.
// When RequestsPerSecond is positive the service is wrapped in a rate limiter.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil || !settings.IsConfigured() {
		return nil, domain.ErrEmbeddingUnavailable
	}

	var svc driven.EmbeddingService
	switch settings.Provider {
	case domain.AIProviderOllama:
		svc = createOllamaEmbedding(settings)

	case domain.AIProviderOpenAI:
		openai, err := createOpenAIEmbedding(settings)
		if err != nil {
			return nil, err
		}
		svc = openai

	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
	}

	if settings.RequestsPerSecond > 0 {
		svc = ratelimit.Wrap(svc, ratelimit.Config{
			RequestsPerSecond: settings.RequestsPerSecond,
			Burst:             settings.Burst,
		})
	}
	return svc, nil
}

// CreateReranker creates the reranker named by settings.
// Returns nil without error when reranking is disabled.
func CreateReranker(settings *domain.RerankSettings) (driven.Reranker, error) {
	if settings == nil || settings.Provider == "" || settings.Provider == domain.RerankProviderNone {
		return nil, nil
	}

	switch settings.Provider {
	case domain.RerankProviderCohere:
		if !settings.IsConfigured() {
			return nil, fmt.Errorf("set %s to enable the cohere reranker", settings.APIKeyEnv)
		}
		return cohere.NewReranker(cohere.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})
	default:
		return nil, fmt.Errorf("%w: rerank provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}

func ping(ctx context.Context, svc driven.EmbeddingService) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := svc.Ping(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no answer within %s: %w", pingTimeout, err)
	}
	return err
}

// createOllamaEmbedding creates an Ollama embedding service.
func createOllamaEmbedding(settings *domain.EmbeddingSettings) driven.EmbeddingService {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}
	if dimensions == 0 {
		dimensions = ollamaembed.DefaultDimensions
	}

	return ollamaembed.NewEmbeddingService(ollamaembed.Config{
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: dimensions,
	})
}

// createOpenAIEmbedding creates an OpenAI embedding service.
func createOpenAIEmbedding(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	dimensions := settings.Dimensions
	if dimensions == 0 {
		dimensions = domain.EmbeddingDimensions()[settings.Model]
	}

	return openaiembed.NewEmbeddingService(openaiembed.Config{
		APIKey:     settings.APIKey,
		BaseURL:    settings.BaseURL,
		Model:      settings.Model,
		Dimensions: dimensions,
	})
}
