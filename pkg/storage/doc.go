// Package storage persists deferred call jobs.
//
// Two core.Storage implementations live here:
//   - GormStorage keeps jobs in a SQL table (PostgreSQL or SQLite) and claims
//     them with row locks.
//   - RedisStorage keeps jobs in Redis hashes indexed by sorted sets and
//     claims them with a Lua script.
//
// Both honour the same contract: a claimed job is locked to one worker,
// heartbeats extend the lock, and locks left behind by dead workers are
// released back to their queue.
package storage
