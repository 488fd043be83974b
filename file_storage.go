package actionq

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

var _ Storage = (*FileStorage)(nil)

// FileStorage keeps each key in its own file under a directory. Writes replace the
// file atomically so a crash never leaves a torn snapshot behind.
type FileStorage struct {
	dir string
}

func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, err)
	}
	return &FileStorage{dir: dir}, nil
}

func (s *FileStorage) path(key string) string {
	return filepath.Join(s.dir, url.PathEscape(key)+".json")
}

func (s *FileStorage) GetItem(_ context.Context, key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrItemNotFound
	}
	if err != nil {
		return "", fmt.Errorf("file storage: failed to load %s: %w", key, err)
	}
	return string(data), nil
}

func (s *FileStorage) SetItem(_ context.Context, key, value string) error {
	if err := atomic.WriteFile(s.path(key), strings.NewReader(value)); err != nil {
		return fmt.Errorf("file storage: failed to save %s: %w", key, err)
	}
	return nil
}

func (s *FileStorage) RemoveItem(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file storage: failed to remove %s: %w", key, err)
	}
	return nil
}
