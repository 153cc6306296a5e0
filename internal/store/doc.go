// Package store keeps normalization runs in SQLite.
//
// A run is one invocation of the process command. For each run the store
// holds:
//   - records: one entry per input file, with its resolved version or
//     structural error code
//   - rows: the normalized rows as canonical JSON
//   - issues: every non-fatal problem the pipeline reported
//
// Rows are keyed by (run_id, row_hash), where row_hash is the
// domain-separated SHA-256 of the row's canonical JSON. Writing the same
// result twice is a no-op.
//
// Queries order by seq (input order), then row_index, so reading a run
// back yields rows in the order they were produced.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
