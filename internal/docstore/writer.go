package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// durableWriter replaces files atomically.
//
// Content goes to <path>.tmp in the same directory, is synced, then renamed
// over <path>. The temporary file is removed on every failure path.
type durableWriter struct {
	dir string
	// rename is os.Rename except in tests.
	rename func(oldpath, newpath string) error
}

func newDurableWriter(dir string) *durableWriter {
	return &durableWriter{dir: dir, rename: os.Rename}
}

// write atomically replaces path with data.
//
// ctx is checked right before the rename; once the rename happened the new
// content is visible and the write is reported as successful.
func (w *durableWriter) write(ctx context.Context, path string, data []byte) (err error) {
	tmpPath := path + tmpExt
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644) //nolint:gosec // G302: documents are not secrets
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
		if err != nil {
			// Best effort, the original error is what matters.
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	err = f.Close()
	f = nil
	if err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err = ctx.Err(); err != nil {
		return err
	}
	if err = w.rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	if err := w.syncDir(); err != nil {
		slog.WarnContext(ctx, "docstore: failed to sync directory", "dir", w.dir, "err", err)
	}
	return nil
}

// syncDir makes the last rename durable.
func (w *durableWriter) syncDir() error {
	d, err := os.Open(w.dir)
	if err != nil {
		return err
	}
	return errors.Join(d.Sync(), d.Close())
}

// cleanupOrphans removes temporary files left behind by a crash between the
// write and the rename. The target files are untouched.
func (w *durableWriter) cleanupOrphans() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt+tmpExt) {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove temp file %s: %w", entry.Name(), err))
		}
	}
	return errors.Join(errs...)
}
