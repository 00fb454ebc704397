package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kiwina/gules/internal/core"
)

// FilesystemStorage stores one file per key in a single directory.
type FilesystemStorage struct {
	root      string
	writeLock sync.Mutex
}

// NewFilesystemStorage creates a filesystem storage rooted at root, or at
// core.CacheRoot() when root is empty. The directory is created on first write.
func NewFilesystemStorage(root string) *FilesystemStorage {
	if root == "" {
		root = core.CacheRoot()
	}
	return &FilesystemStorage{root: root}
}

// Path returns the file path for key.
func (s *FilesystemStorage) Path(key string) string {
	return filepath.Join(s.root, key)
}

// Location returns the cache directory.
func (s *FilesystemStorage) Location() string {
	return s.root
}

func validateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, ".") ||
		strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, os.PathSeparator) {
		return fmt.Errorf("invalid cache key %q", key)
	}
	return nil
}

// Read returns the file contents for key.
func (s *FilesystemStorage) Read(key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Write persists data atomically using temp file + rename.
func (s *FilesystemStorage) Write(key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.root, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", key, err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		return fmt.Errorf("replace %s: %w", key, err)
	}
	cleanup = false
	return nil
}

// Delete removes the file for key; a missing file is not an error.
func (s *FilesystemStorage) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.Path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListKeys returns the names of regular files in the cache directory,
// skipping in-flight temp files.
func (s *FilesystemStorage) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list cache directory: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		keys = append(keys, e.Name())
	}
	sort.Strings(keys)
	return keys, nil
}

// Reset removes the cache directory and recreates it empty.
func (s *FilesystemStorage) Reset() error {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("remove cache directory: %w", err)
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}
	return nil
}
