// Package repositories implements SQLite persistence for the sync's local state.
//
// Key Implementations:
//   - [UserRepository] : Local user mirror with email lookups and subscriber ID write-back
//   - [CacheRepository] : cache.Store over the cache_entries table, so group IDs survive between CLI runs
//
// User queries exclude soft-deleted rows. Sequence numbers come from [NextSequence], which atomically
// increments per-table counters in dedicated sequence tables.
package repositories
