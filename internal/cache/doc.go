// Package cache provides TTL key/value stores used to remember Sender.net directory lookups.
//
// Implementations:
//   - [MemoryStore] : process-local map of key -> (value, expiry)
//   - [RedisStore] : shared store backed by Redis, for multiple sync processes
//
// A SQLite-backed store lives in the repositories package so the CLI can keep entries between runs.
package cache
