package cli

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driving/tui/styles"
)

var documentIdentity string

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document's vectors",
	Long: `Removes every vector stored for the document and its registry entry.
A caller that does not own the document gets a silent no-op.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

var statsCmd = &cobra.Command{
	Use:   "stats <document-id>",
	Short: "Show whether a document is indexed",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var chunksCmd = &cobra.Command{
	Use:   "chunks <document-id>",
	Short: "Print every stored chunk of a document in order",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunks,
}

func init() {
	for _, c := range []*cobra.Command{deleteCmd, statsCmd, chunksCmd} {
		c.Flags().StringVar(&documentIdentity, "identity", "", "caller identity checked against the document owner")
		rootCmd.AddCommand(c)
	}
	rootCmd.AddCommand(listCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	if err := indexService.DeleteDocumentVectors(commandContext(cmd), args[0], documentIdentity); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Deleted document: %s\n", args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	stats, err := indexService.GetDocumentStats(commandContext(cmd), args[0], documentIdentity)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	cmd.Printf("Document: %s\n", args[0])
	if !stats.Exists {
		cmd.Println("  Indexed: no")
		return nil
	}
	cmd.Println("  Indexed: yes")
	cmd.Printf("  Chunks:  %d\n", stats.ChunkCount)
	return nil
}

func runList(cmd *cobra.Command, _ []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	docs, err := indexService.ListDocuments(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}

	rows := make([][]string, len(docs))
	for i := range docs {
		owner := docs[i].Owner
		if owner == "" {
			owner = "-"
		}
		status := "complete"
		if docs[i].NeedsResume() {
			status = fmt.Sprintf("%d batches pending", len(docs[i].FailedBatches))
		}
		rows[i] = []string{
			docs[i].ID,
			strconv.Itoa(docs[i].ChunkCount),
			owner,
			status,
			docs[i].IndexedAt.Local().Format(time.DateTime),
		}
	}

	t := styles.DefaultStyles().Table().
		Headers("DOCUMENT", "CHUNKS", "OWNER", "STATUS", "INDEXED").
		Rows(rows...)
	cmd.Println(t.Render())
	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runChunks(cmd *cobra.Command, args []string) error {
	if searchService == nil {
		return errors.New("search service not configured")
	}

	chunks, err := searchService.Chunks(commandContext(cmd), args[0], documentIdentity)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if len(chunks) == 0 {
		cmd.Printf("No chunks found for document: %s\n", args[0])
		return nil
	}

	for _, c := range chunks {
		cmd.Printf("--- chunk %d ---\n", c.Index)
		cmd.Println(c.Text)
	}
	return nil
}
