package services

import (
	"context"
	"errors"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driven"
)

// authorized reports whether identity may access documentID.
// Access is open without a registry, without an identity, or when the
// document has no registry row.
func authorized(ctx context.Context, registry driven.DocumentRegistry, documentID, identity string) (bool, error) {
	if registry == nil || identity == "" {
		return true, nil
	}
	rec, err := registry.Get(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return rec.OwnedBy(identity), nil
}
