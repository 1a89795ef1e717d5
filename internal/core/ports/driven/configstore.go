package driven

// ConfigStore holds flat configuration values under dotted keys such as
// "embedding.model". Typed getters return the zero value for missing keys
// and for values of another type.
type ConfigStore interface {
	// Get returns the raw value and whether the key exists.
	Get(key string) (any, bool)

	GetString(key string) string
	GetInt(key string) int

	// Set stores a value. Persistent stores write through immediately.
	Set(key string, value any) error

	// Path returns the backing file, or "" when nothing is persisted.
	Path() string
}
