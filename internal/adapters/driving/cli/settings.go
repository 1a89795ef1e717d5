package cli

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-docindex/internal/core/domain"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure the embedding provider, vector backend, reranker and
indexing defaults.

Settings are stored in config.toml inside the config directory. Any key can
be overridden with an environment variable: embedding.model is overridden by
DOCINDEX_EMBEDDING_MODEL. API keys are only ever read from the environment.`,
	RunE: runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a single setting",
	Example: `  docindex settings set embedding.provider ollama
  docindex settings set vector.backend qdrant
  docindex settings set indexing.base_retry_delay 2s`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

var settingsKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List settable keys",
	Args:  cobra.NoArgs,
	RunE:  runSettingsKeys,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsKeysCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	if path := settingsService.Path(); path != "" {
		cmd.Printf("File: %s\n", path)
	}
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	if settings.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", settings.Embedding.BaseURL)
	}
	if settings.Embedding.Dimensions > 0 {
		cmd.Printf("  Dimensions: %d\n", settings.Embedding.Dimensions)
	}
	if settings.Embedding.Provider.RequiresAPIKey() {
		printAPIKey(cmd, settings.Embedding.APIKeyEnv, settings.Embedding.APIKey)
	}
	if settings.Embedding.RequestsPerSecond > 0 {
		cmd.Printf("  Rate limit: %.1f req/s (burst %d)\n",
			settings.Embedding.RequestsPerSecond, settings.Embedding.Burst)
	}
	cmd.Printf("  Status: %s\n", configuredStatus(settings.Embedding.IsConfigured()))
	cmd.Println()

	cmd.Println("[Vector Index]")
	cmd.Printf("  Backend: %s\n", settings.Vector.Backend.Description())
	switch settings.Vector.Backend {
	case domain.VectorBackendSQLite:
		cmd.Printf("  Data dir: %s\n", settings.Vector.DataDir)
	case domain.VectorBackendQdrant:
		cmd.Printf("  URL: %s\n", settings.Vector.URL)
		if settings.Vector.APIKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(settings.Vector.APIKey))
		}
	case domain.VectorBackendPgvector:
		cmd.Printf("  DSN: %s\n", maskDSN(settings.Vector.DSN))
	}
	cmd.Printf("  Max top-k: %d\n", settings.Vector.MaxTopK)
	cmd.Println()

	cmd.Println("[Rerank]")
	if settings.Rerank.Provider == domain.RerankProviderNone || settings.Rerank.Provider == "" {
		cmd.Println("  Provider: none")
	} else {
		cmd.Printf("  Provider: %s\n", settings.Rerank.Provider)
		cmd.Printf("  Model: %s\n", settings.Rerank.Model)
		printAPIKey(cmd, settings.Rerank.APIKeyEnv, settings.Rerank.APIKey)
		cmd.Printf("  Status: %s\n", configuredStatus(settings.Rerank.IsConfigured()))
	}
	cmd.Println()

	cmd.Println("[Indexing]")
	cmd.Printf("  Chunk size: %d (overlap %d)\n", settings.Indexing.ChunkSize, settings.Indexing.ChunkOverlap)
	cmd.Printf("  Batch size: %d\n", settings.Indexing.BatchSize)
	cmd.Printf("  Concurrency: %d\n", settings.Indexing.Concurrency)
	cmd.Printf("  Retries: %d (base delay %s)\n", settings.Indexing.MaxRetries, settings.Indexing.BaseRetryDelay)

	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key, value := args[0], args[1]
	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	cmd.Printf("Set %s = %s\n", key, value)
	return nil
}

func runSettingsKeys(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	for _, k := range settingsService.Keys() {
		cmd.Println(k)
	}
	return nil
}

func printAPIKey(cmd *cobra.Command, env, key string) {
	if key != "" {
		cmd.Printf("  API Key: %s (from %s)\n", maskAPIKey(key), env)
		return
	}
	cmd.Printf("  API Key: (not set, export %s)\n", env)
}

func configuredStatus(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// maskDSN hides the password of a postgres:// URL.
func maskDSN(dsn string) string {
	if dsn == "" {
		return "(not set)"
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "(invalid)"
	}
	return u.Redacted()
}
