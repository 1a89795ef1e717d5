// Package cli implements the docindex command line interface with cobra.
package cli

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docindex/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// skipBootstrap marks commands that run without services.
const skipBootstrap = "skip-bootstrap"

// Services bundles the core services the commands drive.
// Search and Index are nil when no vector store could be opened.
type Services struct {
	Search   driving.SearchService
	Index    driving.IndexService
	Settings driving.SettingsService

	// Close releases stores and clients. Optional.
	Close func() error
}

// Bootstrap builds the services for a config directory.
type Bootstrap func(ctx context.Context, configDir string) (*Services, error)

var (
	searchService   driving.SearchService
	indexService    driving.IndexService
	settingsService driving.SettingsService
	closeServices   func() error

	bootstrap Bootstrap
)

var (
	verbose   bool
	configDir string
)

var rootCmd = &cobra.Command{
	Use:   "docindex",
	Short: "Index documents and retrieve relevant passages",
	Long: `docindex chunks documents, embeds the chunks and stores them in a vector
index, one namespace per document. Queries retrieve the most relevant
passages, optionally reranked, with special handling for questions about
a document's structure such as its chapters or table of contents.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline details to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", DefaultConfigDir(), "configuration and data directory")
}

// DefaultConfigDir returns ~/.docindex, or .docindex when the home
// directory is unknown.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".docindex"
	}
	return filepath.Join(home, ".docindex")
}

// SetServices installs the services used by commands.
func SetServices(s *Services) {
	if s == nil {
		s = &Services{}
	}
	searchService = s.Search
	indexService = s.Index
	settingsService = s.Settings
	closeServices = s.Close
}

// Execute runs the root command. b builds services once flags are parsed.
func Execute(ctx context.Context, b Bootstrap) error {
	bootstrap = b
	err := rootCmd.ExecuteContext(ctx)
	// Post-run hooks are skipped when a command fails.
	if cerr := teardown(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if bootstrap == nil || cmd.Annotations[skipBootstrap] == "true" {
		return nil
	}
	if configDir == "" {
		return errors.New("--config-dir must not be empty")
	}

	svcs, err := bootstrap(cmd.Context(), configDir)
	if err != nil {
		return err
	}
	SetServices(svcs)
	return nil
}

func teardown() error {
	if closeServices == nil {
		return nil
	}
	err := closeServices()
	closeServices = nil
	return err
}

// commandContext returns the command's context, or Background when the
// command runs outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
