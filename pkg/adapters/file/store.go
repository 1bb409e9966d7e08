package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store implements ports.FileStore on an afero filesystem.
// Instance directories live under <root>/instances/<id>.
type Store struct {
	fs   afero.Fs
	root string
}

// New creates a Store rooted at root.
// If root is empty, it defaults to ".tsw".
func New(fs afero.Fs, root string) *Store {
	if root == "" {
		root = ".tsw"
	}
	return &Store{fs: fs, root: root}
}

// Root returns the base directory.
func (s *Store) Root() string {
	return s.root
}

// Reserve creates a fresh, empty directory for the instance.
// Leftovers of a previous reservation are removed first.
func (s *Store) Reserve(ctx context.Context, instanceID string) (string, error) {
	if instanceID == "" {
		return "", fmt.Errorf("instanceID cannot be empty")
	}

	dir := filepath.Join(s.root, "instances", instanceID)
	if err := s.fs.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear instance directory: %w", err)
	}
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create instance directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir, nil
	}
	return abs, nil
}

// Exists reports whether path exists.
func (s *Store) Exists(ctx context.Context, path string) (bool, error) {
	return afero.Exists(s.fs, path)
}

// Delete removes a single file. A missing file is not an error.
func (s *Store) Delete(ctx context.Context, path string) error {
	err := s.fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

// DeleteAll removes a directory tree. A missing directory is not an error.
func (s *Store) DeleteAll(ctx context.Context, path string) error {
	if err := s.fs.RemoveAll(path); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}
