package driving

import "github.com/custodia-labs/sercha-docindex/internal/core/domain"

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings, with API keys resolved
	// from the environment.
	Get() (*domain.AppSettings, error)

	// Set updates a single setting by its dotted key and persists it.
	Set(key, value string) error

	// Keys returns the settable keys in display order.
	Keys() []string

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// Path returns the configuration file path.
	Path() string
}
