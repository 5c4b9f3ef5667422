// Package ledger records one deployment record per deployment identity.
//
// The ledger is a thin layer over a Backend. Record upserts: writing an
// identity that already exists replaces the stored record entirely.
// ListAll returns a lazy, single-pass cursor over the records that existed
// when it was called.
//
// Backends:
//   - file: one indented JSON document per identity at {dir}/{id}.json
//   - sqlite: one row per identity (internal/store)
//   - dynamodb: one item per identity, tagged source=promptinfra
//
// The ledger never mints identities. Two runs handed the same identity
// overwrite each other.
package ledger
