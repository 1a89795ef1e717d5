package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// uriScheme is the custom URI scheme for docindex resources.
const uriScheme = "docindex://"

// chunkInfo is one chunk in the chunks resource.
type chunkInfo struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}/chunks",
		Name:        "document-chunks",
		Description: "Every stored chunk of a document, in chunk order",
		MIMEType:    "application/json",
	}, s.handleChunksResource)
}

// handleChunksResource returns all chunks of a document.
func (s *Server) handleChunksResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if docID == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	chunks, err := s.ports.Search.Chunks(ctx, docID, "")
	if err != nil {
		return nil, fmt.Errorf("getting chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	infos := make([]chunkInfo, len(chunks))
	for i, c := range chunks {
		infos[i] = chunkInfo{Index: c.Index, Text: c.Text}
	}

	data, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling chunks: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractDocumentID extracts the document ID from a URI like
// docindex://documents/{documentId}/chunks. The ID may be percent-encoded.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"
	const suffix = "/chunks"

	if len(uri) <= len(prefix)+len(suffix) ||
		!strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return ""
	}

	raw := uri[len(prefix) : len(uri)-len(suffix)]
	if strings.Contains(raw, "/") {
		return ""
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		return ""
	}
	return id
}
