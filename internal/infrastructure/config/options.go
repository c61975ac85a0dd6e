package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Options is a small persistent key/value store for values discovered at
// runtime rather than configured up front — most importantly the cloud HTTP
// API endpoint, which the cloud pushes over the global config topic.
//
// Writes are value-diffed: Set only touches the backing file when the stored
// value actually changes, so repeated identical pushes from the cloud do not
// cause disk churn.
//
// Thread Safety: All methods are safe for concurrent use.
type Options struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// Well-known option keys.
const (
	// OptionCloudEndpoint is the cloud HTTP API base URL discovered via the
	// global config topic.
	OptionCloudEndpoint = "cloud_api_endpoint"
)

// LoadOptions reads the options file at path, creating an empty store if the
// file does not exist yet.
//
// Parameters:
//   - path: Path to the JSON options file
//
// Returns:
//   - *Options: Loaded options store
//   - error: If the file exists but cannot be read or parsed
func LoadOptions(path string) (*Options, error) {
	o := &Options{
		path:   path,
		values: make(map[string]string),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return o, nil
		}
		return nil, fmt.Errorf("reading options file: %w", err)
	}

	if err := json.Unmarshal(data, &o.values); err != nil {
		return nil, fmt.Errorf("parsing options file: %w", err)
	}

	return o, nil
}

// Get returns the value for key, or "" if unset.
func (o *Options) Get(key string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.values[key]
}

// Set stores a value and persists the file, but only if the value differs
// from what is already stored.
//
// Parameters:
//   - key: Option name
//   - value: New value
//
// Returns:
//   - bool: true if the value changed (and the file was rewritten)
//   - error: If persisting the change fails
func (o *Options) Set(key, value string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.values[key] == value {
		return false, nil
	}

	o.values[key] = value
	if err := o.persistLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// persistLocked writes the options file atomically (temp file + rename).
// Caller must hold o.mu.
func (o *Options) persistLocked() error {
	data, err := json.MarshalIndent(o.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding options: %w", err)
	}

	dir := filepath.Dir(o.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating options directory: %w", err)
	}

	tmp := o.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing options file: %w", err)
	}
	if err := os.Rename(tmp, o.path); err != nil {
		return fmt.Errorf("replacing options file: %w", err)
	}
	return nil
}
