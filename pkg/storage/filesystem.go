package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalStorage persists certificate artifacts on disk under a base directory.
// It stands in for the S3/MinIO object store the platform uses in production;
// keys keep the object-store shape (certificates/<code>.pdf).
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./certificates"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create certificates directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// Save writes the given bytes under the provided storage key.
func (s *LocalStorage) Save(key string, data []byte) (string, error) {
	path := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare artifact directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return key, nil
}

// Open returns a read-only handle for the stored artifact.
func (s *LocalStorage) Open(key string) (*os.File, error) {
	file, err := os.Open(s.resolve(key))
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return file, nil
}

// Exists reports whether an artifact is present under the key.
func (s *LocalStorage) Exists(key string) bool {
	_, err := os.Stat(s.resolve(key))
	return err == nil
}

// Delete removes a stored artifact if present.
func (s *LocalStorage) Delete(key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}

// Path exposes the underlying absolute path (useful for debugging).
func (s *LocalStorage) Path(key string) string {
	return s.resolve(key)
}

func (s *LocalStorage) resolve(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return filepath.Join(s.baseDir, key)
}
