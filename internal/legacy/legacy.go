// ABOUTME: Client for the legacy synchronized key-value store being phased out
// ABOUTME: Treated as a plain async map with no cross-key transaction guarantee

package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Keys the migrator reads from the legacy store.
const (
	KeyContent      = "content"
	KeyLayout       = "layout"
	KeyButtonLayout = "buttonLayout"
)

// Store is the contract the migrator depends on. Get performs one batched
// read; keys absent from the legacy store are simply missing from the result
// map. Remove deletes keys best-effort.
type Store interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	Remove(ctx context.Context, keys ...string) error
}

// FileStore reads and writes the legacy store's synchronized snapshot, a
// single JSON object file left behind by the old storage mechanism.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore returns a FileStore over the snapshot file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Get reads the requested keys in one batch. A missing snapshot file is not
// an error; it reads as an empty store.
func (s *FileStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return nil, err
	}

	result := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := data[k]; ok {
			result[k] = v
		}
	}
	return result, nil
}

// Set writes a single key into the snapshot.
func (s *FileStore) Set(ctx context.Context, key string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[key] = value
	return s.save(data)
}

// Remove deletes the given keys from the snapshot. Absent keys are skipped.
func (s *FileStore) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}

	changed := false
	for _, k := range keys {
		if _, ok := data[k]; ok {
			delete(data, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save(data)
}

// load reads the snapshot file. Must be called with mu held.
func (s *FileStore) load() (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading legacy snapshot: %w", err)
	}
	data := map[string]json.RawMessage{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing legacy snapshot: %w", err)
	}
	return data, nil
}

// save rewrites the snapshot file. Must be called with mu held.
func (s *FileStore) save(data map[string]json.RawMessage) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding legacy snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating legacy snapshot directory: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("writing legacy snapshot: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
