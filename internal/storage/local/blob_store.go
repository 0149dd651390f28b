// Package local implements a local filesystem blob store for discussion documents.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/JakeFAU/afd-harvester/internal/afd"
)

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where documents are stored.
	BaseDir string `mapstructure:"base_dir"`
}

// BlobStore writes documents to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates the base directory when needed and checks it is writable.
func New(cfg Config) (*BlobStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	check, err := os.CreateTemp(cfg.BaseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	name := check.Name()
	_ = check.Close()
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("failed to clean up write check file: %w", err)
	}

	return &BlobStore{baseDir: cfg.BaseDir}, nil
}

// PutObject writes data under the base directory and returns a file:// URI.
// The file is renamed into place, so readers never see a partial document.
// Names the filesystem rejects (too long, invalid, escaping the base
// directory) wrap afd.ErrInvalidName.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is required", afd.ErrInvalidName)
	}

	fullPath := filepath.Join(s.baseDir, path)
	cleanBaseDir := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal detected", afd.ErrInvalidName)
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", classify(fmt.Errorf("failed to create parent directories: %w", err))
	}

	// The temp name does not embed the target name, so its length is fixed.
	tmp, err := os.CreateTemp(dir, ".doc-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		_ = os.Remove(tmpName)
		return "", classify(fmt.Errorf("failed to move file into place: %w", err))
	}

	return "file://" + fullPath, nil
}

// classify tags errors caused by the name itself rather than the directory.
func classify(err error) error {
	if errors.Is(err, syscall.ENAMETOOLONG) || errors.Is(err, syscall.EINVAL) {
		return fmt.Errorf("%w: %w", afd.ErrInvalidName, err)
	}
	return err
}

// Exists reports whether a document is stored at path.
func (s *BlobStore) Exists(path string) bool {
	_, err := os.Stat(filepath.Join(s.baseDir, path))
	return err == nil
}
