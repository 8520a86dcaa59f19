// Package local implements a store that copies objects into a directory tree.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonesrussell/north-cloud/sru-harvester/internal/fsutil"
	"github.com/jonesrussell/north-cloud/sru-harvester/internal/store"
)

// Config configures the local store.
type Config struct {
	// Dir is the root directory objects are copied into.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Store copies objects below a root directory.
type Store struct {
	root string
}

var _ store.Store = (*Store)(nil)

// New creates a local store rooted at cfg.Dir.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("local store dir is required")
	}
	root, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve local store dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Name implements store.Store.
func (s *Store) Name() string { return store.BackendLocal }

// EnsureContainer creates the root directory.
func (s *Store) EnsureContainer(_ context.Context) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create local store dir: %w", err)
	}
	return nil
}

// Put copies the object into place with a temp file and rename.
func (s *Store) Put(ctx context.Context, remotePath string, obj store.Object) error {
	dest, err := s.resolve(remotePath)
	if err != nil {
		return err
	}

	src, err := os.Open(obj.LocalPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", obj.LocalPath, err)
	}
	defer src.Close()

	return fsutil.WriteAtomic(dest, func(w io.Writer) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		_, copyErr := io.Copy(w, src)
		return copyErr
	})
}

// Location returns the absolute destination path.
func (s *Store) Location(remotePath string) string {
	return "file://" + filepath.Join(s.root, filepath.FromSlash(remotePath))
}

// resolve maps a slash-separated remote path below the root, rejecting escapes.
func (s *Store) resolve(remotePath string) (string, error) {
	dest := filepath.Join(s.root, filepath.FromSlash(remotePath))
	rel, err := filepath.Rel(s.root, dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("remote path %q escapes the store root", remotePath)
	}
	return dest, nil
}
