// Package file provides the file-based configuration adapters.
//
// Adapters:
//   - ConfigStore: TOML settings in <config dir>/config.toml
//   - LoadEnv: .env files layered under the real environment
package file
