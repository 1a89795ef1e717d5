package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// SearchInput is the input schema for the search_document tool.
type SearchInput struct {
	DocumentID  string   `json:"document_id" jsonschema:"ID of the indexed document to search"`
	Query       string   `json:"query" jsonschema:"natural language question or search text"`
	TopK        int      `json:"top_k,omitempty" jsonschema:"maximum number of passages to return (default 7)"`
	InitialTopK int      `json:"initial_top_k,omitempty" jsonschema:"candidates fetched before reranking (default 25)"`
	SkipRerank  bool     `json:"skip_rerank,omitempty" jsonschema:"rank by vector similarity only"`
	MinScore    *float64 `json:"min_score,omitempty" jsonschema:"drop reranked passages below this score (default 0.1)"`
	Identity    string   `json:"identity,omitempty" jsonschema:"verified caller identity, checked against the document owner"`
}

// SearchOutput is the output schema for the search_document tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single retrieved passage.
type SearchResultOutput struct {
	ChunkIndex     int     `json:"chunk_index"`
	Text           string  `json:"text"`
	Score          float64 `json:"score"`
	WasReranked    bool    `json:"was_reranked"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
}

// IndexInput is the input schema for the index_document tool.
type IndexInput struct {
	DocumentID string            `json:"document_id" jsonschema:"ID to store the document under"`
	Text       string            `json:"text" jsonschema:"full plain text of the document"`
	ChunkSize  int               `json:"chunk_size,omitempty" jsonschema:"target chunk size in characters"`
	Overlap    *int              `json:"overlap,omitempty" jsonschema:"characters shared between neighbouring chunks (default from settings)"`
	BatchSize  int               `json:"batch_size,omitempty" jsonschema:"chunks per embedding request"`
	Resume     bool              `json:"resume,omitempty" jsonschema:"re-embed only the batches that failed in the last run"`
	Metadata   map[string]string `json:"metadata,omitempty" jsonschema:"extra metadata stored with every chunk"`
	Identity   string            `json:"identity,omitempty" jsonschema:"verified caller identity, recorded as the owner"`
}

// IndexOutput is the output schema for the index_document tool.
type IndexOutput struct {
	JobID            string `json:"job_id"`
	Success          bool   `json:"success"`
	Chunks           int    `json:"chunks"`
	SuccessfulChunks int    `json:"successful_chunks"`
	FailedBatches    []int  `json:"failed_batches"`
	DurationMillis   int64  `json:"duration_ms"`
}

// DocumentInput identifies a document for the stats and delete tools.
type DocumentInput struct {
	DocumentID string `json:"document_id" jsonschema:"ID of the document"`
	Identity   string `json:"identity,omitempty" jsonschema:"verified caller identity, checked against the document owner"`
}

// StatsOutput is the output schema for the document_stats tool.
type StatsOutput struct {
	DocumentID string `json:"document_id"`
	Exists     bool   `json:"exists"`
	ChunkCount int    `json:"chunk_count"`
}

// DeleteOutput is the output schema for the delete_document tool.
type DeleteOutput struct {
	DocumentID string `json:"document_id"`
	Deleted    bool   `json:"deleted"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "search_document",
		Description: "Retrieve the passages of an indexed document most relevant to a query. " +
			"Questions about chapters or the table of contents are answered from structural chunks.",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_document",
		Description: "Chunk, embed and store a document's text so it can be searched",
	}, s.handleIndex)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "document_stats",
		Description: "Report whether a document is indexed and how many chunks it has",
	}, s.handleStats)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "delete_document",
		Description: "Delete all stored vectors of a document",
	}, s.handleDelete)
}

// handleSearch handles the search_document tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	opts := domain.SearchOptions{
		InitialTopK:       input.InitialTopK,
		FinalTopK:         input.TopK,
		SkipRerank:        input.SkipRerank,
		MinRelevanceScore: -1,
		Identity:          input.Identity,
	}
	if input.MinScore != nil {
		opts.MinRelevanceScore = *input.MinScore
	}

	results, err := s.ports.Search.Search(ctx, input.DocumentID, input.Query, opts.WithDefaults())
	if err != nil {
		return nil, SearchOutput{}, err
	}

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results)),
		Count:   len(results),
	}
	for i, r := range results {
		output.Results[i] = SearchResultOutput{
			ChunkIndex:     r.ChunkIndex,
			Text:           r.Text,
			Score:          r.Score,
			WasReranked:    r.WasReranked,
			RelevanceScore: r.RelevanceScore,
		}
	}

	return nil, output, nil
}

// handleIndex handles the index_document tool invocation.
func (s *Server) handleIndex(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexInput,
) (*mcp.CallToolResult, IndexOutput, error) {
	opts := domain.IndexOptions{
		ChunkSize:    input.ChunkSize,
		ChunkOverlap: domain.UnsetOverlap,
		BatchSize:    input.BatchSize,
		Extra:        input.Metadata,
		Identity:     input.Identity,
	}
	if input.Overlap != nil {
		opts.ChunkOverlap = *input.Overlap
	}

	index := s.ports.Index.IndexDocument
	if input.Resume {
		index = s.ports.Index.ResumeDocument
	}
	result, err := index(ctx, input.DocumentID, input.Text, opts)
	if err != nil {
		return nil, IndexOutput{}, err
	}
	if result == nil {
		return nil, IndexOutput{}, errors.New("index returned no result")
	}

	failed := result.FailedBatches
	if failed == nil {
		failed = []int{}
	}
	return nil, IndexOutput{
		JobID:            result.JobID,
		Success:          result.Success,
		Chunks:           result.Chunks,
		SuccessfulChunks: result.SuccessfulChunks,
		FailedBatches:    failed,
		DurationMillis:   result.TimeTaken.Milliseconds(),
	}, nil
}

// handleStats handles the document_stats tool invocation.
func (s *Server) handleStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, StatsOutput, error) {
	stats, err := s.ports.Index.GetDocumentStats(ctx, input.DocumentID, input.Identity)
	if err != nil {
		return nil, StatsOutput{}, err
	}
	return nil, StatsOutput{
		DocumentID: input.DocumentID,
		Exists:     stats.Exists,
		ChunkCount: stats.ChunkCount,
	}, nil
}

// handleDelete handles the delete_document tool invocation.
func (s *Server) handleDelete(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input DocumentInput,
) (*mcp.CallToolResult, DeleteOutput, error) {
	if err := s.ports.Index.DeleteDocumentVectors(ctx, input.DocumentID, input.Identity); err != nil {
		return nil, DeleteOutput{}, err
	}
	return nil, DeleteOutput{DocumentID: input.DocumentID, Deleted: true}, nil
}
