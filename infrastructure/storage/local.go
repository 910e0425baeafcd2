package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/Skryldev/audioedit/domain/ports"
)

// LocalStorage implements ports.StorageProvider for local filesystem.
// Every playable reference produced by the editor is a file created here.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates a new local storage provider rooted at baseDir.
// An empty baseDir uses the OS temp directory.
func NewLocalStorage(baseDir string) *LocalStorage {
	return &LocalStorage{baseDir: baseDir}
}

func (s *LocalStorage) dir(dir string) (string, error) {
	if dir == "" {
		dir = s.baseDir
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Exists checks if a file exists
func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Size returns file size in bytes
func (s *LocalStorage) Size(_ context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes a file. Removing a missing file is not an error.
func (s *LocalStorage) Remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// TempFile creates a temporary file and returns its path
func (s *LocalStorage) TempFile(_ context.Context, dir, pattern string) (string, error) {
	dir, err := s.dir(dir)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return filepath.Abs(f.Name())
}

// Create creates a temporary file and returns it open for writing
func (s *LocalStorage) Create(_ context.Context, dir, pattern string) (ports.WriteSeekCloser, string, error) {
	dir, err := s.dir(dir)
	if err != nil {
		return nil, "", err
	}
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, "", err
	}
	path, err := filepath.Abs(f.Name())
	if err != nil {
		f.Close()
		return nil, "", err
	}
	return f, path, nil
}

// Open opens a file for reading
func (s *LocalStorage) Open(_ context.Context, path string) (io.ReadSeekCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
