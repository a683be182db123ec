// Package fsstore is a filesystem-backed implementation of memory.Store,
// used by cmd/research and by Engine.InspectRun's fallback path when no
// dedicated run store is wired. Grounded on
// internal/adapters/storage/filesystem/event_store.go's directory layout
// and JSON-file-per-entry persistence, generalized from aggregate events
// to plain scoped key/value pairs.
package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"deepresearch/internal/memory"
)

// Store persists scope/key/value triples as one JSON file per key under
// {baseDir}/{sanitized scope}/{sanitized key}.json.
type Store struct {
	baseDir string
}

// New creates a filesystem-backed Store rooted at baseDir, creating the
// directory if necessary.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("fsstore: create base dir: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

var _ memory.Store = (*Store)(nil)

type record struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	WrittenAt time.Time `json:"written_at"`
}

func (s *Store) scopeDir(scope string) string {
	return filepath.Join(s.baseDir, sanitize(scope))
}

func (s *Store) keyPath(scope, key string) string {
	return filepath.Join(s.scopeDir(scope), sanitize(key)+".json")
}

// Write stores value under key in scope, overwriting any prior value.
func (s *Store) Write(_ context.Context, scope, key, value string) error {
	dir := s.scopeDir(scope)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("fsstore: create scope dir: %w", err)
	}
	rec := record{Key: key, Value: value, WrittenAt: time.Now()}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("fsstore: marshal record: %w", err)
	}
	return os.WriteFile(s.keyPath(scope, key), data, 0644)
}

// Read retrieves the value stored under key in scope.
func (s *Store) Read(_ context.Context, scope, key string) (string, bool, error) {
	data, err := os.ReadFile(s.keyPath(scope, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("fsstore: read %s/%s: %w", scope, key, err)
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", false, fmt.Errorf("fsstore: decode %s/%s: %w", scope, key, err)
	}
	return rec.Value, true, nil
}

// Search returns every entry in scope whose key contains needle, sorted by
// key for deterministic ordering.
func (s *Store) Search(_ context.Context, scope, needle string) ([]memory.Entry, error) {
	dir := s.scopeDir(scope)
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fsstore: list scope %s: %w", scope, err)
	}

	var results []memory.Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f.Name()))
		if err != nil {
			continue
		}
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if needle == "" || strings.Contains(rec.Key, needle) {
			results = append(results, memory.Entry{Key: rec.Key, Value: rec.Value})
		}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })
	return results, nil
}

// Reset removes every entry in scope.
func (s *Store) Reset(_ context.Context, scope string) error {
	if err := os.RemoveAll(s.scopeDir(scope)); err != nil {
		return fmt.Errorf("fsstore: reset scope %s: %w", scope, err)
	}
	return nil
}

func sanitize(s string) string {
	replacer := strings.NewReplacer(":", "_", "/", "_", "\\", "_", " ", "_")
	return replacer.Replace(s)
}
