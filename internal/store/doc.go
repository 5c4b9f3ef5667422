// Package store provides SQLite-backed durable storage for deployment
// records.
//
// Each deployment identity owns exactly one row. Writes are upserts:
// recording an identity that already exists replaces every column of the
// existing row.
//
// # Ordering
//
// Listing queries ORDER BY created_at ASC, id ASC COLLATE BINARY, so two
// listings of the same database return rows in the same order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
