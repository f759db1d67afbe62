// Package models defines domain entities and persistence interfaces for the Linkea Sender.net sync.
//
// The package contains two categories of types:
//
// 1. Persistent Entities: Database-backed models with full lifecycle management
//   - [User] : Local application user mirrored from Linkea, carrying the remote subscriber ID
//
// 2. Remote values: Lightweight structs representing Sender.net data and sync bookkeeping
//   - [Subscriber] : Remote subscriber record
//   - [Group] : Remote group (directory entry)
//   - [SubscriberLookup] : Result variant of a subscriber lookup (found, not found, transient error)
//   - [Tag], [TagSet], [TagDelta] : Derived subscriber tags and explicit add/remove deltas
//   - [SyncStats], [SyncPlan] : Tallies returned by bulk operations
//
// All persistent entities implement the Model interface providing ID, timestamps and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
