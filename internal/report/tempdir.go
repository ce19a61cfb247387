package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TempDir is a scratch directory owned by one job run or one download.
// Close removes the whole tree and is safe to call more than once.
type TempDir struct {
	path string
	once sync.Once
	err  error
}

// NewTempDir creates a directory under parent (os.TempDir when empty).
func NewTempDir(parent, pattern string) (*TempDir, error) {
	path, err := os.MkdirTemp(parent, pattern)
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	return &TempDir{path: path}, nil
}

// Path returns the directory path.
func (t *TempDir) Path() string {
	return t.path
}

// Join returns a path inside the directory.
func (t *TempDir) Join(elem ...string) string {
	return filepath.Join(append([]string{t.path}, elem...)...)
}

// Close removes the directory and everything under it.
func (t *TempDir) Close() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		t.err = os.RemoveAll(t.path)
	})
	return t.err
}
