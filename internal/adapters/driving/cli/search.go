package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

// Output formats for search results.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// snippetLength bounds the passage text shown in table output.
const snippetLength = 160

var (
	searchInitialTopK int
	searchTopK        int
	searchSkipRerank  bool
	searchMinScore    float64
	searchIdentity    string
	searchOutput      string
)

var searchCmd = &cobra.Command{
	Use:   "search <document-id> <query>",
	Short: "Search an indexed document",
	Long: `Retrieves the passages of a document most relevant to a query.

Candidates are fetched by vector similarity and reranked when a reranker
is configured. Questions about the document's structure, such as its
chapters or table of contents, are answered from the chunks that look
like a table of contents.`,
	Example: `  docindex search biology-101 "how do cells store energy"
  docindex search biology-101 "what chapters does this book have" --output json`,
	Args: cobra.ExactArgs(2),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntVar(&searchInitialTopK, "initial-top-k", domain.DefaultInitialTopK, "candidates fetched before reranking")
	f.IntVarP(&searchTopK, "top-k", "k", domain.DefaultFinalTopK, "maximum number of results")
	f.BoolVar(&searchSkipRerank, "skip-rerank", false, "rank by vector similarity only")
	f.Float64Var(&searchMinScore, "min-score", domain.DefaultMinRelevanceScore, "drop reranked results below this score")
	f.StringVar(&searchIdentity, "identity", "", "caller identity checked against the document owner")
	f.StringVarP(&searchOutput, "output", "o", outputTable, "output format: table, json or yaml")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	format := strings.ToLower(searchOutput)
	if format != outputTable && format != outputJSON && format != outputYAML {
		return fmt.Errorf("%w: unknown output format %q", domain.ErrInvalidInput, searchOutput)
	}

	opts := domain.SearchOptions{
		InitialTopK:       searchInitialTopK,
		FinalTopK:         searchTopK,
		SkipRerank:        searchSkipRerank,
		MinRelevanceScore: searchMinScore,
		Identity:          searchIdentity,
	}

	results, err := searchService.Search(commandContext(cmd), args[0], args[1], opts)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	switch format {
	case outputJSON:
		return outputSearchJSON(cmd, results)
	case outputYAML:
		return outputSearchYAML(cmd, results)
	default:
		return outputSearchTable(cmd, results)
	}
}

func outputSearchJSON(cmd *cobra.Command, results []domain.SearchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputSearchYAML(cmd *cobra.Command, results []domain.SearchResult) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	return enc.Close()
}

func outputSearchTable(cmd *cobra.Command, results []domain.SearchResult) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	rows := make([][]string, len(results))
	for i, r := range results {
		reranked := "no"
		if r.WasReranked {
			reranked = "yes"
		}
		rows[i] = []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(r.ChunkIndex),
			fmt.Sprintf("%.3f", r.Score),
			reranked,
			snippet(r.Text),
		}
	}

	t := styles.DefaultStyles().Table().
		Headers("#", "CHUNK", "SCORE", "RERANKED", "TEXT").
		Rows(rows...)
	cmd.Println(t.Render())
	return nil
}

// snippet collapses whitespace and truncates text for one table row.
func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength-3]) + "..."
}
