package cache

import (
	"context"
	"errors"

	"github.com/roach88/promptinfra/internal/ir"
)

// Tier is one level of the cache hierarchy.
//
// Get returns (entry, true, nil) on a hit and (zero, false, nil) on a miss.
// Errors are reserved for failures to answer at all.
type Tier interface {
	Name() ir.Tier
	Get(ctx context.Context, key ir.CacheKey) (ir.CacheEntry, bool, error)
	Put(ctx context.Context, entry ir.CacheEntry) error
}

// ErrCorrupt marks an entry that exists but cannot be trusted: a bad
// envelope, a failed decompression, or a digest mismatch.
var ErrCorrupt = errors.New("corrupt cache entry")
