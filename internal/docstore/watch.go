package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch evicts cached documents whose file is modified, created, removed or
// renamed, so that edits made outside of the store are observed by the next
// Load.
//
// The watcher runs in the background until ctx is done or the store is
// closed. Saves made by the store itself also trigger an eviction, which only
// costs a disk read.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(s.dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		cancel()
		_ = w.Close()
		return ErrClosed
	}
	s.watchers = append(s.watchers, cancel)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				key, ok := keyFromPath(event.Name)
				if !ok || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
					continue
				}
				if err := s.Invalidate(ctx, key); err != nil {
					// Only fails on shutdown.
					slog.DebugContext(ctx, "docstore: failed to invalidate", "key", key, "err", err)
					continue
				}
				slog.DebugContext(ctx, "docstore: document changed on disk", "key", key, "op", event.Op.String())
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "docstore: error watching directory", "dir", s.dir, "err", err)
			}
		}
	}()
	return nil
}

// keyFromPath maps <dir>/<key>.json back to key.
func keyFromPath(path string) (string, bool) {
	key, ok := strings.CutSuffix(filepath.Base(path), fileExt)
	if !ok || validateKey(key) != nil {
		return "", false
	}
	return key, true
}
