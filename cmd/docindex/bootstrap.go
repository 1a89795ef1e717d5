package main

import (
	"context"
	"fmt"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/ai"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driving/cli"
	"github.com/custodia-labs/sercha-docindex/internal/core/services"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
	"github.com/custodia-labs/sercha-docindex/internal/postprocessors/chunker"
)

// bootstrap wires adapters and services for configDir.
//
// Only an unreadable config file is fatal. When the settings are invalid or
// the vector store cannot be opened, the settings service is still returned
// so the configuration can be repaired with 'docindex settings set'.
func bootstrap(ctx context.Context, configDir string) (*cli.Services, error) {
	if err := file.LoadEnv(configDir); err != nil {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	settingsService := services.NewSettingsService(store)

	settings, err := settingsService.Get()
	if err != nil {
		logger.Warn("search and indexing disabled: %v", err)
		return &cli.Services{Settings: settingsService}, nil
	}

	adapters, err := ai.Init(ctx, settings)
	if err != nil {
		logger.Warn("search and indexing disabled: %v", err)
		return &cli.Services{Settings: settingsService}, nil
	}

	vectors := services.NewVectorStore(adapters.VectorIndex)
	batcher := services.NewEmbeddingBatcher(adapters.EmbeddingService, services.DefaultRetryPolicy())
	split := chunker.New(
		chunker.WithChunkSize(settings.Indexing.ChunkSize),
		chunker.WithOverlap(settings.Indexing.ChunkOverlap),
	)

	return &cli.Services{
		Search: services.NewSearchService(
			adapters.EmbeddingService, vectors, nil, adapters.Reranker, adapters.Registry),
		Index:    services.NewIndexService(split, batcher, vectors, adapters.Registry),
		Settings: settingsService,
		Close: func() error {
			adapters.Close()
			return nil
		},
	}, nil
}
