package mcp

import (
	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driving"
)

// Ports aggregates the driving ports used by the MCP server.
type Ports struct {
	// Search retrieves passages and chunks.
	Search driving.SearchService

	// Index indexes, inspects and deletes documents.
	Index driving.IndexService
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p == nil || p.Search == nil {
		return ErrMissingSearchService
	}
	if p.Index == nil {
		return ErrMissingIndexService
	}
	return nil
}
