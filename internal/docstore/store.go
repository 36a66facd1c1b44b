package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Option configures a Store.
type Option func(*options)

type options struct {
	cacheTTL      time.Duration
	cacheCapacity uint64
	history       bool
	historyName   string
	historyEmail  string
}

// WithCacheTTL expires cached documents d after they were loaded or saved.
// Expired documents are read from disk again on the next Load.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) { o.cacheTTL = d }
}

// WithCacheCapacity bounds the number of cached documents; the least recently
// used one is dropped first.
func WithCacheCapacity(n uint64) Option {
	return func(o *options) { o.cacheCapacity = n }
}

// WithHistory commits every successful save to a git repository rooted at the
// store directory, using name and email as the commit identity.
//
// Each save that changes a document gets its own commit. Commits share one
// repository, so with history enabled the commit step of saves on different
// keys runs one at a time. A failed commit is logged and does not fail the
// save.
func WithHistory(name, email string) Option {
	return func(o *options) {
		o.history = true
		o.historyName = name
		o.historyEmail = email
	}
}

// Store persists one JSON document per key.
//
// All methods are safe for concurrent use.
type Store struct {
	dir    string
	def    any
	locks  *lockRegistry
	cache  *cache
	writer *durableWriter
	hist   *history // nil when history is disabled

	closed atomic.Bool

	mu       sync.Mutex // guards watchers
	watchers []context.CancelFunc
	wg       sync.WaitGroup
}

// New opens the store in dir, creating it and its parents if needed.
//
// def is the document returned for keys that have no valid file. It must be
// JSON encodable.
func New(dir string, def any, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	dir, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	_, normDef, err := encode(def)
	if err != nil {
		return nil, fmt.Errorf("invalid default document: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	s := &Store{
		dir:    dir,
		def:    normDef,
		locks:  newLockRegistry(),
		writer: newDurableWriter(dir),
	}
	if err := s.writer.cleanupOrphans(); err != nil {
		slog.Warn("docstore: failed to remove orphaned temp files", "dir", dir, "err", err)
	}
	if o.history {
		if s.hist, err = openHistory(dir, o.historyName, o.historyEmail); err != nil {
			return nil, err
		}
	}
	s.cache = newCache(o.cacheTTL, o.cacheCapacity)
	return s, nil
}

// Dir returns the directory holding the documents.
func (s *Store) Dir() string {
	return s.dir
}

// Load returns a copy of the document for key.
//
// A missing, empty, unreadable or corrupt file yields a copy of the default
// document. The only errors are an invalid key, a closed store and ctx being
// done while waiting for the key's lock.
func (s *Store) Load(ctx context.Context, key string) (any, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	release, err := s.locks.acquire(ctx, key)
	if err != nil {
		return nil, err
	}
	defer release()

	if doc, ok := s.cache.get(key); ok {
		return doc, nil
	}
	doc := s.read(ctx, key)
	s.cache.put(key, doc)
	return doc, nil
}

// Save durably replaces the document for key.
//
// On success the document is cached and on disk. On failure the previous file,
// if any, is intact and the key is evicted from the cache so the next Load
// reflects the disk.
func (s *Store) Save(ctx context.Context, key string, doc any) error {
	if err := s.check(key); err != nil {
		return err
	}
	release, err := s.locks.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	if err := s.save(ctx, key, doc); err != nil {
		return fmt.Errorf("failed to save %q: %w", key, err)
	}
	if s.hist != nil {
		// Still under the key lock so the commit holds exactly this document.
		if err := s.hist.commit(ctx, key+fileExt, "save "+key); err != nil {
			slog.WarnContext(ctx, "docstore: failed to record history", "key", key, "err", err)
		}
	}
	return nil
}

// Invalidate drops the cached document for key so the next Load reads the
// file again.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if err := s.check(key); err != nil {
		return err
	}
	release, err := s.locks.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	s.cache.evict(key)
	return nil
}

// History returns up to n saved revisions of key, newest first. n <= 0 means
// the maximum of 1000.
func (s *Store) History(ctx context.Context, key string, n int) ([]Revision, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	if s.hist == nil {
		return nil, ErrHistoryDisabled
	}
	return s.hist.log(ctx, key+fileExt, n)
}

// LoadRevision returns the document for key as it was saved in the commit
// hash. Unlike Load, corrupt content is reported as an error.
func (s *Store) LoadRevision(ctx context.Context, key, hash string) (any, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}
	if s.hist == nil {
		return nil, ErrHistoryDisabled
	}
	data, err := s.hist.read(ctx, hash, key+fileExt)
	if err != nil {
		return nil, err
	}
	doc, ok, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("corrupt revision %s of %q: %w", hash, key, err)
	}
	if !ok {
		return clone(s.def), nil
	}
	return doc, nil
}

// Close stops background work. Later calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if !s.closed.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return ErrClosed
	}
	watchers := s.watchers
	s.watchers = nil
	s.mu.Unlock()

	for _, cancel := range watchers {
		cancel()
	}
	s.wg.Wait()
	s.cache.stop()
	return nil
}

func (s *Store) check(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// read loads key from disk, falling back to the default document. The key
// lock must be held.
func (s *Store) read(ctx context.Context, key string) any {
	path := s.path(key)
	data, err := os.ReadFile(path) //nolint:gosec // G304: key is validated
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "docstore: failed to read document, using default", "key", key, "err", err)
		}
		return clone(s.def)
	}
	doc, ok, err := decode(data)
	if err != nil {
		slog.WarnContext(ctx, "docstore: corrupt document, using default", "key", key, "err", err)
		return clone(s.def)
	}
	if !ok {
		return clone(s.def)
	}
	return doc
}

// save persists doc. The key lock must be held.
func (s *Store) save(ctx context.Context, key string, doc any) error {
	data, generic, err := encode(doc)
	if err != nil {
		s.cache.evict(key)
		return err
	}
	s.cache.put(key, generic)
	if err := s.writer.write(ctx, s.path(key), data); err != nil {
		// Never let the cache get ahead of the disk.
		s.cache.evict(key)
		return err
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

func expandHome(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", dir, err)
	}
	return filepath.Join(home, dir[1:]), nil
}
