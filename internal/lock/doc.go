// Package lock provides the advisory locking primitive used by the
// Orchestrator (C8) to enforce category-exclusive maintenance tasks across
// a single node. The Thumbnail/HLS engines (C5/C6) do not take these locks;
// they deduplicate in-flight artifact generation with their own in-process
// structures.
//
// Locker is backed by Redis (SET NX PX + a Lua compare-and-delete release)
// when REDIS_ADDR is configured; otherwise it falls back to an in-process
// mutex table, since the store of record is node-local files and clustering
// across nodes is explicitly a non-goal.
package lock
