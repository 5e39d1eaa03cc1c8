package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/jittakal/kafeventavro/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.ObjectStore = (*FileStore)(nil)

// FileConfig contains local filesystem configuration.
type FileConfig struct {
	BasePath string
}

// FileStore implements storage.ObjectStore for the local filesystem.
// Locations are resolved below BasePath; objects are written to a temporary
// file and renamed into place so readers never observe a partial file.
type FileStore struct {
	basePath string
	logger   *zap.Logger
}

// NewFileStore creates a new filesystem store.
func NewFileStore(config FileConfig, logger *zap.Logger) (*FileStore, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("file base path is required")
	}
	if err := os.MkdirAll(config.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base path: %w", err)
	}

	logger.Info("filesystem store created", zap.String("base_path", config.BasePath))

	return &FileStore{
		basePath: config.BasePath,
		logger:   logger,
	}, nil
}

// Put writes data below the base path.
func (s *FileStore) Put(_ context.Context, location string, data []byte, _ string) error {
	fullPath := s.Resolve(location)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := fullPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp, fullPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// Resolve maps a location onto the local path it is stored at.
func (s *FileStore) Resolve(location string) string {
	clean := strings.TrimPrefix(location, "file://")
	return filepath.Join(s.basePath, filepath.FromSlash(clean))
}

// Backend returns "file".
func (s *FileStore) Backend() string { return "file" }

// Close closes the store.
func (s *FileStore) Close() error {
	s.logger.Info("closing filesystem store")
	return nil
}
