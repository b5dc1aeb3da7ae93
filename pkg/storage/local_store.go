package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps rendered export files in a flat directory on disk.
type LocalStore struct {
	root string
}

// NewLocalStore ensures the root directory exists and returns a handle.
func NewLocalStore(root string) (*LocalStore, error) {
	if root == "" {
		root = "./exports"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create export root %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

// Save writes payload under the given name and returns the stored name.
func (s *LocalStore) Save(name string, payload []byte) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return "", fmt.Errorf("write export %s: %w", name, err)
	}
	return name, nil
}

// Open returns a read-only handle for a stored file.
func (s *LocalStore) Open(name string) (*os.File, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", name, err)
	}
	return file, nil
}

// Delete removes a stored file. Missing files are not an error.
func (s *LocalStore) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete export %s: %w", name, err)
	}
	return nil
}

// CleanupOlderThan removes files whose modification time predates the TTL
// and returns the names it deleted.
func (s *LocalStore) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("scan export root: %w", err)
	}
	cutoff := time.Now().Add(-ttl)
	deleted := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return deleted, fmt.Errorf("stat export %s: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.root, entry.Name())); err != nil && !os.IsNotExist(err) {
			return deleted, fmt.Errorf("remove stale export %s: %w", entry.Name(), err)
		}
		deleted = append(deleted, entry.Name())
	}
	return deleted, nil
}

// Path reports the absolute location of a stored file.
func (s *LocalStore) Path(name string) string {
	path, err := s.resolve(name)
	if err != nil {
		return filepath.Join(s.root, filepath.Base(name))
	}
	return path
}

// resolve joins the name onto the root and rejects names that escape it.
func (s *LocalStore) resolve(name string) (string, error) {
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("invalid export name %q", name)
	}
	return filepath.Join(s.root, cleaned), nil
}
