// Package stores provides the persistence backends behind the devkit cache.
//
// Every backend stores opaque encoded entries under a storage ID (the hashed
// cache key) and knows nothing about TTLs or value encoding; that lives in
// package cache. Three backends are available:
//
//   - MemoryStore: map-backed, for tests and ephemeral use
//   - FileStore: one <id>.cache file per entry under a directory
//   - SQLiteStore: a single SQLite database in WAL mode with embedded
//     migrations
package stores
