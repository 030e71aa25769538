// ABOUTME: File-backed key-value store used as the page-local fallback surface
// ABOUTME: Holds shadow copies of note/layout data plus the migration flag

package localkv

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Fixed keys used by the storage layer. The cs_ prefix is kept from the
// original overlay so an existing fallback file remains readable.
const (
	KeyNote          = "cs_note"
	KeyLayout        = "cs_layout"
	KeyButtonLayout  = "cs_button_layout"
	KeyMigrationDone = "cs_migration_done"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("key not found")

// Store is a small synchronous string key-value store persisted as a single
// JSON file. It is the fallback surface when the durable store or the broker
// channel is unavailable, and it holds the migration completion flag.
//
// Values are raw strings; callers that need structure store JSON themselves.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a store backed by the file at path. The file is created lazily
// on the first Set; a missing file reads as an empty store.
func New(path string) *Store {
	return &Store{path: path}
}

// Get returns the value for key, or ErrNotFound if the key is absent.
func (s *Store) Get(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return "", err
	}
	v, ok := data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set writes the value for key, creating the backing file if needed.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	data[key] = value
	return s.save(data)
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return s.save(data)
}

// load reads the backing file. Must be called with mu held.
func (s *Store) load() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading fallback store: %w", err)
	}
	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing fallback store: %w", err)
	}
	return data, nil
}

// save writes the backing file atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated store. Must be called with mu held.
func (s *Store) save(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding fallback store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating fallback store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".localkv-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing fallback store: %w", err)
	}
	return nil
}
