// Package disk implements a filesystem-backed object store.
// Object key format: {basePath}/{segment}/{segment}/... where each
// slash-separated key segment is sanitized for filesystem safety.
package disk

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"Postdeck/internal/storage"
)

// Store implements storage.ObjectStore on top of a local directory.
type Store struct {
	basePath string
}

// NewStore creates a Store rooted at basePath, creating the directory if needed.
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, storage.ErrInvalidKey
	}
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, err
	}
	return &Store{basePath: basePath}, nil
}

// makeSegmentSafe sanitizes one key segment to prevent path traversal:
// path separators, ".." sequences, and null bytes are stripped, and
// colons are replaced with underscores.
func makeSegmentSafe(segment string) string {
	s := strings.ReplaceAll(segment, ":", "_")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "\\", "")
	s = strings.ReplaceAll(s, "..", "")
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// objectPath maps an object key onto the filesystem. Empty or fully
// sanitized-away keys are rejected by the callers via ErrInvalidKey.
func (s *Store) objectPath(key string) (string, error) {
	if key == "" {
		return "", storage.ErrInvalidKey
	}
	parts := strings.Split(key, "/")
	safe := make([]string, 0, len(parts))
	for _, p := range parts {
		cleaned := makeSegmentSafe(p)
		if cleaned == "" {
			continue
		}
		safe = append(safe, cleaned)
	}
	if len(safe) == 0 {
		return "", storage.ErrInvalidKey
	}
	return filepath.Join(s.basePath, filepath.Join(safe...)), nil
}

// Get returns the bytes stored under key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.objectPath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

// Put stores data under key. The write is atomic: data is written to a
// temp file first and renamed into place, so a crash never leaves a
// partially written object.
func (s *Store) Put(_ context.Context, key string, data []byte) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Delete removes the object under key. Missing keys are not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	path, err := s.objectPath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size returns the total number of bytes stored under the base path.
func (s *Store) Size() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil // Skip files we can't stat
		}
		total += info.Size()
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return 0, err
	}
	return total, nil
}
