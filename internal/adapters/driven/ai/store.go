package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/pgvector"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/qdrant"
	"github.com/custodia-labs/sercha-docindex/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// VectorStore bundles a vector index with the document registry that
// accompanies it.
type VectorStore struct {
	Index    driven.VectorIndex
	Registry driven.DocumentRegistry
	Close    func() error
}

// CreateVectorStore opens the backend named by settings.
//
// Remote backends keep the document registry in the local SQLite database
// under DataDir. The memory backend keeps both in process.
func CreateVectorStore(ctx context.Context, settings *domain.VectorSettings) (*VectorStore, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: nil vector settings", domain.ErrInvalidInput)
	}

	switch settings.Backend {
	case domain.VectorBackendMemory:
		index := memory.NewVectorIndex()
		return &VectorStore{
			Index:    index,
			Registry: memory.NewDocumentRegistry(),
			Close:    index.Close,
		}, nil

	case domain.VectorBackendSQLite, "":
		store, err := sqlite.NewStore(settings.DataDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return &VectorStore{
			Index:    store.VectorIndex(),
			Registry: store.Registry(),
			Close:    store.Close,
		}, nil

	case domain.VectorBackendQdrant:
		store, err := sqlite.NewStore(settings.DataDir)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		index := qdrant.New(qdrant.Config{
			URL:     settings.URL,
			APIKey:  settings.APIKey,
			MaxTopK: settings.MaxTopK,
		})
		return &VectorStore{
			Index:    index,
			Registry: store.Registry(),
			Close:    func() error { return errors.Join(index.Close(), store.Close()) },
		}, nil

	case domain.VectorBackendPgvector:
		index, err := pgvector.Open(ctx, pgvector.Config{
			DSN:     settings.DSN,
			MaxTopK: settings.MaxTopK,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		store, err := sqlite.NewStore(settings.DataDir)
		if err != nil {
			index.Close()
			return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
		}
		return &VectorStore{
			Index:    index,
			Registry: store.Registry(),
			Close:    func() error { return errors.Join(index.Close(), store.Close()) },
		}, nil

	default:
		return nil, fmt.Errorf("%w: vector backend %q", domain.ErrUnsupportedType, settings.Backend)
	}
}
