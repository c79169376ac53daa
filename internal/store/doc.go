// Package store provides SQLite-backed storage for the firing ledger and the
// history of displayed nudges.
//
// # Tables
//
//   - firings: one row per (session_id, subject_id, dedup_key). The UNIQUE
//     constraint is the at-most-once guarantee; inserts use ON CONFLICT DO
//     NOTHING and report whether a row was written. Subjects sharing a
//     session keep separate key spaces.
//   - nudges: append-only audit history of every displayed nudge, with the
//     canonical JSON payload and its digest.
//
// # Sessions
//
// Firing decisions are scoped to a session id. Each process start uses a
// fresh UUIDv7 session id, so firing state never carries over a restart even
// though the history survives it.
//
// # Ordering
//
// Timestamps are stored as UTC unix nanoseconds. Queries order by time, then
// seq, then id COLLATE BINARY so results are deterministic.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
