// Package fsutil holds the crash-safe file write used for every durable
// artifact the harvester produces (cursor, shards, manifest, local store).
package fsutil

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	// DefaultFilePerm is the permission for written files.
	DefaultFilePerm os.FileMode = 0o644
	// DefaultDirPerm is the permission for created directories.
	DefaultDirPerm os.FileMode = 0o755

	bufSize = 64 * 1024
)

// WriteAtomic writes the content produced by fill to dest through a temp file
// in the same directory, fsyncs it and renames it over dest. Readers observe
// either the previous file or the complete new one.
func WriteAtomic(dest string, fill func(w io.Writer) error) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, DefaultDirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(dest)+"-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	bw := bufio.NewWriterSize(tmp, bufSize)
	if err = fill(bw); err != nil {
		cleanup()
		return err
	}
	if err = bw.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush %s: %w", tmpPath, err)
	}
	if err = tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err = os.Chmod(tmpPath, DefaultFilePerm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", dest, err)
	}

	// Best effort: persist the directory entry.
	if d, openErr := os.Open(dir); openErr == nil {
		_ = d.Sync()
		_ = d.Close()
	}

	return nil
}

// WriteFileAtomic is WriteAtomic for an in-memory payload.
func WriteFileAtomic(dest string, data []byte) error {
	return WriteAtomic(dest, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
