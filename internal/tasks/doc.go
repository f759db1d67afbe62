// Package tasks keeps Sender.net subscribers in agreement with local Linkea users.
//
// # Components
//
// Three components are layered bottom-up and share one [Gate]:
//
//  1. [GroupDirectory] : logical group name → remote group ID
//     - Cached per name with a TTL in a [cache.Store]
//     - Fetches the group list on a miss and creates missing groups on demand
//     - Remote failures leave the group unresolved; they are never returned as errors
//
//  2. [Reconciler] : one user → one subscriber
//     - Create adopts an existing subscriber with the same email instead of failing
//     - Update forces ACTIVE marketing and transactional status and rewrites tag fields
//     - Assigned remote IDs are written back through a [SubscriberIDStore]
//
//  3. [SyncEngine] : many users
//     - Fetches the remote directory once and classifies each user as synced, updated, skipped or failed
//     - Processes users in input order and paces every mutating call with a [services.Throttle]
//
// # Enablement
//
// Every remote call is guarded by [Gate.Enabled]. A closed gate is not an error: operations return nil,
// false or an all-skipped tally so that disabling the integration never breaks callers.
//
// # Progress Reporting
//
// Bulk operations call a [ProgressFunc] synchronously after each user with a [ProgressUpdate] carrying the
// user's position, [Outcome] and a display message.
package tasks
