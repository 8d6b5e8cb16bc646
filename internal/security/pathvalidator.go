package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathEscapes  = errors.New("path escapes wallet directory")
	ErrAbsolutePath = errors.New("absolute paths are not allowed")
	ErrEmptyPath    = errors.New("empty path not allowed")
)

// PathValidator confines file operations on export files to the wallet
// directory using os.Root.
type PathValidator struct {
	root    *os.Root
	dirPath string
}

// New opens a PathValidator rooted at dir.
func New(dir string) (*PathValidator, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	root, err := os.OpenRoot(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet directory: %w", err)
	}

	return &PathValidator{
		root:    root,
		dirPath: absPath,
	}, nil
}

// Close releases the directory handle.
func (pv *PathValidator) Close() error {
	if pv.root != nil {
		return pv.root.Close()
	}
	return nil
}

// Dir returns the absolute wallet directory.
func (pv *PathValidator) Dir() string {
	return pv.dirPath
}

// Normalize validates a user-provided path and returns it relative to the
// wallet directory with forward slashes. It rejects empty paths, absolute
// paths and paths that leave the directory.
func (pv *PathValidator) Normalize(userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	if !filepath.IsLocal(userPath) {
		if filepath.IsAbs(userPath) {
			return "", fmt.Errorf("%w: %s", ErrAbsolutePath, userPath)
		}
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	relPath, err := filepath.Rel(pv.dirPath, filepath.Join(pv.dirPath, filepath.Clean(userPath)))
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if strings.HasPrefix(relPath, "..") || filepath.IsAbs(relPath) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapes, userPath)
	}

	return filepath.ToSlash(relPath), nil
}

// WriteFile writes data to path inside the wallet directory, creating
// parent directories as needed.
func (pv *PathValidator) WriteFile(path string, data []byte, perm os.FileMode) error {
	rel, err := pv.Normalize(filepath.FromSlash(path))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	platformPath := filepath.FromSlash(rel)

	if dir := filepath.Dir(platformPath); dir != "." {
		if err := pv.root.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return pv.root.WriteFile(platformPath, data, perm)
}

// ReadFile reads path inside the wallet directory.
func (pv *PathValidator) ReadFile(path string) ([]byte, error) {
	rel, err := pv.Normalize(filepath.FromSlash(path))
	if err != nil {
		return nil, fmt.Errorf("invalid path: %w", err)
	}
	return pv.root.ReadFile(filepath.FromSlash(rel))
}
