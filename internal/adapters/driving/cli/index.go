package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-docindex/internal/adapters/driving/tui/progress"
	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// watchDebounce coalesces bursts of write events from editors.
const watchDebounce = 500 * time.Millisecond

var (
	indexChunkSize   int
	indexOverlap     int
	indexBatchSize   int
	indexConcurrency int
	indexMaxRetries  int
	indexIdentity    string
	indexMeta        map[string]string
	indexWatch       bool
	indexResume      bool
)

var indexCmd = &cobra.Command{
	Use:   "index <document-id> <file>",
	Short: "Index a text file as a document",
	Long: `Chunks the file, embeds every chunk and stores the vectors under the
document ID. Re-indexing a document replaces its previous vectors.

Batches that fail after all retries are reported and recorded. Run the
same command again with --resume to re-embed only those batches.

With --watch the file is re-indexed every time it changes, until
interrupted.`,
	Example: `  docindex index biology-101 ./biology.txt
  docindex index biology-101 ./biology.txt --batch-size 50 --concurrency 2
  docindex index biology-101 ./biology.txt --resume`,
	Args: cobra.ExactArgs(2),
	RunE: runIndex,
}

func init() {
	f := indexCmd.Flags()
	f.IntVar(&indexChunkSize, "chunk-size", 0, "target chunk size in characters (0 = configured default)")
	f.IntVar(&indexOverlap, "overlap", 0, "characters shared between neighbouring chunks")
	f.IntVar(&indexBatchSize, "batch-size", 0, "chunks per embedding request (0 = configured default)")
	f.IntVar(&indexConcurrency, "concurrency", 0, "embedding requests in flight (0 = configured default)")
	f.IntVar(&indexMaxRetries, "max-retries", 0, "retries per failed batch (0 = configured default)")
	f.StringVar(&indexIdentity, "identity", "", "owner identity recorded for the document")
	f.StringToStringVar(&indexMeta, "meta", nil, "extra metadata stored with every chunk (key=value)")
	f.BoolVarP(&indexWatch, "watch", "w", false, "re-index whenever the file changes")
	f.BoolVar(&indexResume, "resume", false, "re-embed only the batches that failed last time")
	indexCmd.MarkFlagsMutuallyExclusive("watch", "resume")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}
	documentID, path := args[0], args[1]

	opts, err := indexOptions(cmd)
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	if err := indexFile(ctx, cmd, documentID, path, opts); err != nil {
		return err
	}
	if !indexWatch {
		return nil
	}
	logger.SetTimestamps(true)
	return watchFile(ctx, cmd, path, func() error {
		return indexFile(ctx, cmd, documentID, path, opts)
	})
}

// indexOptions starts from the configured indexing defaults and applies
// the flags the user set.
func indexOptions(cmd *cobra.Command) (domain.IndexOptions, error) {
	opts := domain.IndexOptions{ChunkOverlap: domain.UnsetOverlap}
	if settingsService != nil {
		settings, err := settingsService.Get()
		if err != nil {
			return opts, fmt.Errorf("failed to get settings: %w", err)
		}
		opts.ChunkSize = settings.Indexing.ChunkSize
		opts.ChunkOverlap = settings.Indexing.ChunkOverlap
		opts.BatchSize = settings.Indexing.BatchSize
		opts.Concurrency = settings.Indexing.Concurrency
		opts.MaxRetries = settings.Indexing.MaxRetries
		opts.BaseRetryDelay = settings.Indexing.BaseRetryDelay
	}

	flags := cmd.Flags()
	if flags.Changed("chunk-size") {
		opts.ChunkSize = indexChunkSize
	}
	if flags.Changed("overlap") {
		opts.ChunkOverlap = indexOverlap
	}
	if flags.Changed("batch-size") {
		opts.BatchSize = indexBatchSize
	}
	if flags.Changed("concurrency") {
		opts.Concurrency = indexConcurrency
	}
	if flags.Changed("max-retries") {
		opts.MaxRetries = indexMaxRetries
	}
	if opts.ChunkSize > 0 && opts.ChunkOverlap >= opts.ChunkSize {
		return opts, fmt.Errorf("%w: --overlap must be smaller than --chunk-size", domain.ErrInvalidInput)
	}

	opts.Identity = indexIdentity
	if len(indexMeta) > 0 {
		opts.Extra = indexMeta
	}
	return opts, nil
}

func indexFile(ctx context.Context, cmd *cobra.Command, documentID, path string, opts domain.IndexOptions) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := string(data)

	job := func(ctx context.Context, ch chan<- domain.ProgressInfo) (*domain.IndexResult, error) {
		o := opts
		o.Progress = ch
		if indexResume {
			return indexService.ResumeDocument(ctx, documentID, text, o)
		}
		return indexService.IndexDocument(ctx, documentID, text, o)
	}

	var result *domain.IndexResult
	if isTerminal(cmd.OutOrStdout()) {
		title := fmt.Sprintf("Indexing %s", documentID)
		if indexResume {
			title = fmt.Sprintf("Resuming %s", documentID)
		}
		result, err = progress.Run(ctx, cmd.OutOrStdout(), title, job)
	} else {
		result, err = runWithProgressLines(ctx, cmd.ErrOrStderr(), job)
	}
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	printIndexResult(cmd, documentID, result)
	return nil
}

// runWithProgressLines runs job and writes one line per progress snapshot.
func runWithProgressLines(ctx context.Context, w io.Writer, job progress.Job) (*domain.IndexResult, error) {
	ch := make(chan domain.ProgressInfo, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		var last uint64
		for p := range ch {
			if p.Seq <= last {
				continue
			}
			last = p.Seq
			fmt.Fprintf(w, "progress: %d/%d batches (%.0f%%)\n",
				p.CompletedBatches, p.TotalBatches, p.PercentComplete)
		}
	}()

	result, err := job(ctx, ch)
	close(ch)
	<-done
	return result, err
}

func printIndexResult(cmd *cobra.Command, documentID string, result *domain.IndexResult) {
	if result == nil {
		return
	}
	cmd.Printf("Document: %s\n", documentID)
	cmd.Printf("  Job:      %s\n", result.JobID)
	cmd.Printf("  Chunks:   %d/%d stored\n", result.SuccessfulChunks, result.Chunks)
	cmd.Printf("  Duration: %s\n", result.TimeTaken.Round(time.Millisecond))
	if len(result.FailedBatches) > 0 {
		cmd.Printf("  Failed batches: %v\n", result.FailedBatches)
		cmd.Println("Run again with --resume to retry the failed batches.")
	}
	if !result.Success {
		cmd.Println("No chunks were stored.")
	}
}

// watchFile calls reindex after each change to path until ctx is done.
// The parent directory is watched so editors that replace the file on
// save keep triggering events.
func watchFile(ctx context.Context, cmd *cobra.Command, path string, reindex func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	cmd.Printf("Watching %s for changes (Ctrl+C to stop)\n", path)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != abs {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			logger.Debug("Change detected: %s", event)
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			pending = timer.C
		case <-pending:
			pending = nil
			if err := reindex(); err != nil {
				cmd.PrintErrf("Re-index failed: %v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error: %v", err)
		}
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
