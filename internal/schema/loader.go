package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Logger is the minimal logging interface used by the loader.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Load returns the category schema, preferring the local cache file and
// falling back to a cloud fetch (which then populates the cache).
//
// An old cache format stored the raw category-id list under a top-level
// "categories" key instead of category→features; such files are discarded
// and refetched.
//
// Parameters:
//   - ctx: Context for the fetch
//   - path: Cache file path
//   - client: Cloud API client, used only when the cache is absent or stale
//   - logger: Destination for progress logging
//
// Returns:
//   - *Schema: Loaded schema
//   - error: If neither cache nor fetch can produce a schema
func Load(ctx context.Context, path string, client *Client, logger Logger) (*Schema, error) {
	cached, err := readCache(path)
	if err != nil {
		logger.Warn("unreadable category cache, refetching", "path", path, "error", err)
	} else if cached != nil {
		if isLegacyFormat(cached) {
			logger.Info("legacy category cache format, refetching", "path", path)
			if err := os.Remove(path); err != nil {
				logger.Warn("removing legacy category cache", "error", err)
			}
		} else {
			logger.Info("category schema loaded from cache", "path", path, "categories", len(cached))
			return buildSchema(cached)
		}
	}

	if client == nil {
		return nil, fmt.Errorf("schema: no cache at %s and no cloud endpoint configured", path)
	}

	logger.Info("fetching category schema from cloud")
	fetched, err := client.FetchCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	if err := writeCache(path, fetched); err != nil {
		logger.Warn("writing category cache", "error", err)
	}

	return New(fetched), nil
}

// EnsureModels fetches the model list into path unless the file already
// exists. Missing models are not fatal; callers decide how loudly to log.
func EnsureModels(ctx context.Context, path string, client *Client, logger Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if client == nil {
		return fmt.Errorf("schema: no model cache at %s and no cloud endpoint configured", path)
	}

	logger.Info("fetching model list from cloud")
	models, err := client.FetchModels(ctx)
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("schema: creating model cache directory: %w", err)
	}
	if err := os.WriteFile(path, models, 0o644); err != nil {
		return fmt.Errorf("schema: writing model cache: %w", err)
	}
	return nil
}

// readCache parses the cache file into raw per-category documents.
// Returns (nil, nil) when the file does not exist.
func readCache(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// isLegacyFormat detects the old cache shape, which carried the raw
// category-id list under a "categories" key.
func isLegacyFormat(raw map[string]json.RawMessage) bool {
	_, ok := raw["categories"]
	return ok
}

// buildSchema decodes per-category feature lists into a Schema.
func buildSchema(raw map[string]json.RawMessage) (*Schema, error) {
	categories := make(map[string][]Feature, len(raw))
	for cat, doc := range raw {
		var features []Feature
		if err := json.Unmarshal(doc, &features); err != nil {
			return nil, fmt.Errorf("schema: decoding cached features for %q: %w", cat, err)
		}
		categories[cat] = features
	}
	return New(categories), nil
}

// writeCache persists the fetched schema atomically.
func writeCache(path string, categories map[string][]Feature) error {
	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
