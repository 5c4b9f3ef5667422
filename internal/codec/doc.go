// Package codec is the single CBOR configuration used for on-disk cache
// envelopes.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding, no indefinite-length items. The same
// logical value always produces identical bytes, so rewriting an unchanged
// entry leaves the file byte-for-byte the same.
//
// Struct types use json struct tags; fxamacker/cbor falls back to them, so
// the same types serialize with encoding/json for CLI output.
package codec
