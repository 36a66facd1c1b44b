// Package docstore provides a concurrent-safe, crash-consistent store of JSON
// documents, one file per key.
//
// # Overview
//
// [Store] maps an opaque string key to a single JSON document persisted as
// <dir>/<key>.json. Documents are cached in memory after the first access so
// reads do not touch the disk.
//
// # Concurrency: Per-Key Locking
//
// Every [Store.Load] and [Store.Save] holds the lock of its key for the whole
// operation, cache lookup and disk I/O included. Operations on different keys
// never share a lock and run in parallel. Locks are reference counted and
// dropped once nobody holds or waits for them.
//
// # Durability
//
// [Store.Save] writes the canonical encoding to <key>.json.tmp, syncs it and
// renames it over <key>.json. A reader of <key>.json observes either the old
// or the new document, never a mix. A crash can only leave an orphaned
// temporary file, which [New] removes.
//
// # Failure Policy
//
// Loading never fails because of the content on disk: a missing, empty,
// unreadable or corrupt file yields a copy of the default document. A failed
// save returns an error and evicts the key from the cache so that the next
// load reflects what is actually on disk.
//
// # File Format
//
// UTF-8 JSON with object keys sorted, two-space indentation and a trailing
// newline, which keeps files diffable. See [WithHistory] to commit every save
// to a git repository rooted at the store directory.
package docstore
