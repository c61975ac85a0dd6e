package device

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the whole registry snapshot. Implementations must make
// Save atomic: after a crash, the snapshot is either the old state or the
// new one, never a torn write.
type Store interface {
	// Load reads the snapshot. A missing snapshot is not an error; it
	// returns an empty map.
	Load() (map[string]*Record, error)

	// Save writes the full snapshot, replacing the previous one.
	Save(records map[string]*Record) error
}

// FileStore is a Store backed by a single JSON file mapping device id to
// record. The file is rewritten in full on every save via a temp file and
// rename, so readers never observe a partial write.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed snapshot store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the snapshot file. If the file does not exist yet, an empty
// registry is returned so first startup works without provisioning.
func (s *FileStore) Load() (map[string]*Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]*Record), nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	records := make(map[string]*Record)
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	return records, nil
}

// Save writes the snapshot atomically.
func (s *FileStore) Save(records map[string]*Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}

	return nil
}
