// Package ir provides the value types shared by every promptinfra package.
//
// This package contains type definitions and identity functions only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - CacheKey and deployment identity are distinct identifiers and are never
//     interchangeable
//   - Artifacts are immutable values; a new generation produces a new Artifact
//   - All JSON tags use snake_case
package ir
