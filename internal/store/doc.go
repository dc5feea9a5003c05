// Package store provides SQLite-backed durable storage for the offline sync engine.
//
// Two tables back every persisted structure:
//   - kv: whole-value records addressed by key ("offline-actions",
//     "feed:<userId>:<tab>", "cache_<url>")
//   - cache_entries: request-key → response pairs grouped by partition name
//
// # Access Patterns
//
// Read-entire/write-entire: callers read a full value, compute a new one and
// write it back. There are no partial updates of a kv value.
//
// Insertion order: cache_entries.seq is an AUTOINCREMENT column, so
// "ORDER BY seq" yields the partition in insertion order. Rewriting an
// existing request key deletes the old row and inserts a new one; the entry
// becomes the newest in its partition.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Two drivers are supported: mattn/go-sqlite3 ("sqlite3", cgo) and
// modernc.org/sqlite ("sqlite", pure Go, used for cross-compiled clients).
package store
