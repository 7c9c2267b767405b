package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FileStore writes images into a local directory
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed and returns a store rooted there
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Save(_ context.Context, name string, data []byte, _ string) (string, error) {
	path, err := s.resolve(name)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func (s *FileStore) Load(_ context.Context, path string) ([]byte, error) {
	resolved, err := s.resolve(filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if filepath.Clean(path) != resolved {
		return nil, fmt.Errorf("path %s is outside the storage directory", path)
	}
	data, err := os.ReadFile(resolved)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", resolved, err)
	}
	return data, nil
}

// resolve maps an object name to a file inside the storage directory
func (s *FileStore) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return filepath.Join(s.dir, name), nil
}
