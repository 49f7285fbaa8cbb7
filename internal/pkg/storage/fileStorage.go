package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
)

// FileStorage stores blobs by key and returns them back. Keys are
// slash-separated locators, e.g. "processed/<fingerprint>.png".
type FileStorage interface {
	Save(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) bool
}

type fileStorage struct {
	basePath string
}

// NewFileStorage keeps blobs on local disk under basePath.
func NewFileStorage(basePath string) FileStorage {
	return &fileStorage{basePath: basePath}
}

func (s *fileStorage) Save(_ context.Context, key string, _ string, data []byte) error {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(file, bytes.NewReader(data))
	return err
}

func (s *fileStorage) Get(_ context.Context, key string) ([]byte, error) {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	return os.ReadFile(fullPath)
}

func (s *fileStorage) Delete(_ context.Context, key string) error {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	return os.Remove(fullPath)
}

func (s *fileStorage) Exists(_ context.Context, key string) bool {
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(key))
	_, err := os.Stat(fullPath)
	return !os.IsNotExist(err)
}
