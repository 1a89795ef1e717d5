// Package mcp provides an MCP (Model Context Protocol) server adapter for docindex.
// It lets AI assistants index documents and retrieve passages from them.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")

// ErrMissingIndexService is returned when the index service is not provided.
var ErrMissingIndexService = errors.New("mcp: index service is required")
