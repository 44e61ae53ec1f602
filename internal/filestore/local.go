package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const defaultStorageRoot = "~/.config/mnemod/storage"

// LocalConfig configures LocalStorage.
type LocalConfig struct {
	// Root is the directory relative paths resolve against.
	Root string
}

// ApplyDefaults fills in default values for unset fields.
func (c *LocalConfig) ApplyDefaults() {
	if c.Root == "" {
		c.Root = defaultStorageRoot
	}
}

// Validate checks the configuration.
func (c *LocalConfig) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("%w: root is required", ErrInvalidConfig)
	}
	return nil
}

// LocalStorage stores blobs under a root directory on the local filesystem.
type LocalStorage struct {
	root   string
	logger *zap.Logger
}

// NewLocalStorage creates a LocalStorage rooted at config.Root, creating
// the directory if needed.
func NewLocalStorage(config LocalConfig, logger *zap.Logger) (*LocalStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	root, err := expandStoragePath(config.Root)
	if err != nil {
		return nil, fmt.Errorf("expanding root: %w", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root %s: %w", root, err)
	}

	return &LocalStorage{root: root, logger: logger}, nil
}

// expandStoragePath expands ~ to the home directory.
func expandStoragePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// resolve maps a storage path to an absolute filesystem path. Locations
// recorded as file:// URIs or absolute paths are honored as-is so rows
// written under a different root still resolve.
func (s *LocalStorage) resolve(path string) string {
	path = strings.TrimPrefix(path, "file://")
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.root, path)
}

// Store writes data at path and returns its file:// location. An existing
// file is overwritten.
func (s *LocalStorage) Store(ctx context.Context, path string, data io.Reader) (string, error) {
	full := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", filepath.Dir(full), err)
	}

	file, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("creating file %s: %w", full, err)
	}
	if _, err := io.Copy(file, data); err != nil {
		file.Close()
		return "", fmt.Errorf("writing file %s: %w", full, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("closing file %s: %w", full, err)
	}

	return "file://" + full, nil
}

// Open returns a reader over the file at path.
func (s *LocalStorage) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := os.Open(s.resolve(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("opening file: %w", err)
	}
	return file, nil
}

// Remove deletes the file at path. Removing an absent file is a no-op.
func (s *LocalStorage) Remove(ctx context.Context, path string) error {
	if err := os.Remove(s.resolve(path)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("remove of absent file ignored", zap.String("path", path))
			return nil
		}
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// RemoveAll deletes the directory tree at path. An empty path removes the
// entire storage root. Absent trees are ignored.
func (s *LocalStorage) RemoveAll(ctx context.Context, path string) error {
	target := s.root
	if path != "" {
		target = s.resolve(path)
	}
	if err := os.RemoveAll(target); err != nil {
		return fmt.Errorf("removing tree %s: %w", target, err)
	}
	return nil
}

var _ Storage = (*LocalStorage)(nil)
