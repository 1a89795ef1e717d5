package file

import (
	"errors"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/sercha-docindex/internal/logger"
)

// LoadEnv loads .env from configDir and then from the working directory.
// Variables already set in the environment are never overridden, so the
// real environment wins over the config dir, which wins over the working
// directory. Missing files are skipped.
func LoadEnv(configDir string) error {
	paths := []string{".env"}
	if configDir != "" {
		paths = []string{filepath.Join(configDir, ".env"), ".env"}
	}

	for _, path := range paths {
		err := godotenv.Load(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		logger.Debug("Loaded environment from %s", path)
	}
	return nil
}
