// Package clientdata provides the file-backed JSON caches shared by the
// sentiment, exchange-rate and prediction layers.
//
// Files are plain JSON written without locking; the last writer wins. A file
// that cannot be read or decoded is treated as a cache miss.
package clientdata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrMiss is returned when a cache entry is absent or unreadable
var ErrMiss = errors.New("cache miss")

// Store reads and writes JSON cache files under a base directory
type Store struct {
	dir string
	now func() time.Time
}

// NewStore creates a store rooted at dir. now is the clock used for ages;
// nil means time.Now.
func NewStore(dir string, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{dir: dir, now: now}
}

// Dir returns the base directory
func (s *Store) Dir() string {
	return s.dir
}

// Now returns the store's current time
func (s *Store) Now() time.Time {
	return s.now()
}

// Path returns the absolute path of a cache file
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Read decodes the named file into v. Missing or corrupt files return ErrMiss.
func (s *Store) Read(name string, v interface{}) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMiss, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMiss, name, err)
	}
	return nil
}

// Write encodes v as indented JSON into the named file
func (s *Store) Write(name string, v interface{}) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	if err := os.WriteFile(s.Path(name), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

// Age returns how long ago the named file was last modified
func (s *Store) Age(name string) (time.Duration, error) {
	info, err := os.Stat(s.Path(name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMiss, name, err)
	}
	age := s.now().Sub(info.ModTime())
	if age < 0 {
		age = 0
	}
	return age, nil
}

// Delete removes the named file. Deleting a missing file is not an error.
func (s *Store) Delete(name string) error {
	if err := os.Remove(s.Path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", name, err)
	}
	return nil
}

// Prune removes JSON files with the given prefix whose mtime is older than
// maxAge and returns how many were removed.
func (s *Store) Prune(prefix string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to list cache directory: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		age, err := s.Age(name)
		if err != nil || age < maxAge {
			continue
		}
		if err := s.Delete(name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
