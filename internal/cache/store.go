package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/roach88/promptinfra/internal/ir"
)

// Store is the read-through, write-through tiered cache.
type Store struct {
	tiers  []Tier
	logger *slog.Logger
	clock  func() time.Time

	hits      []atomic.Int64
	misses    atomic.Int64
	backfills atomic.Int64
	failures  atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithRemote appends a best-effort tier after the existing ones.
func WithRemote(t Tier) Option {
	return func(s *Store) {
		if t != nil {
			s.tiers = append(s.tiers, t)
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithClock sets the clock used to stamp new entries.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		s.clock = clock
	}
}

// New builds a Store whose tier 0 is local.
func New(local Tier, opts ...Option) (*Store, error) {
	if local == nil {
		return nil, errors.New("cache: tier 0 is required")
	}
	s := &Store{
		tiers:  []Tier{local},
		logger: slog.Default(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hits = make([]atomic.Int64, len(s.tiers))
	return s, nil
}

// Tiers returns the tier names in probe order.
func (s *Store) Tiers() []ir.Tier {
	names := make([]ir.Tier, len(s.tiers))
	for i, t := range s.tiers {
		names[i] = t.Name()
	}
	return names
}

// Get probes tiers in order. The first hit is returned and written back to
// every earlier tier. All-miss returns (zero, false, nil).
//
// A tier-0 read error is returned. Later tiers that fail are logged and
// treated as misses. A corrupt entry in any tier reads as a miss so the
// caller regenerates and overwrites it.
func (s *Store) Get(ctx context.Context, key ir.CacheKey) (ir.CacheEntry, bool, error) {
	for i, t := range s.tiers {
		entry, ok, err := t.Get(ctx, key)
		if err != nil {
			if i == 0 && !errors.Is(err, ErrCorrupt) {
				return ir.CacheEntry{}, false, fmt.Errorf("cache get %s from %s: %w", key, t.Name(), err)
			}
			s.failures.Add(1)
			s.logger.Warn("cache tier read failed, treating as miss",
				"tier", t.Name(), "key", key, "error", err)
			continue
		}
		if !ok {
			continue
		}

		s.hits[i].Add(1)
		s.logger.Debug("cache hit", "tier", t.Name(), "key", key)
		s.backfill(ctx, entry, i)
		return entry, true, nil
	}

	s.misses.Add(1)
	s.logger.Debug("cache miss", "key", key)
	return ir.CacheEntry{}, false, nil
}

// backfill writes entry into every tier before index hit. A failed write is
// logged; the read already succeeded.
func (s *Store) backfill(ctx context.Context, entry ir.CacheEntry, hit int) {
	for j := 0; j < hit; j++ {
		t := s.tiers[j]
		if err := t.Put(ctx, entry); err != nil {
			s.failures.Add(1)
			s.logger.Warn("cache backfill failed",
				"tier", t.Name(), "key", entry.Key, "from", entry.Origin, "error", err)
			continue
		}
		s.backfills.Add(1)
		s.logger.Debug("cache backfilled", "tier", t.Name(), "key", entry.Key, "from", entry.Origin)
	}
}

// Put stores artifact under key. The tier-0 write must succeed; later tiers
// are best effort. Re-putting an existing key overwrites it.
func (s *Store) Put(ctx context.Context, key ir.CacheKey, artifact ir.Artifact) error {
	entry := ir.CacheEntry{
		Key:       key,
		Artifact:  artifact,
		Origin:    s.tiers[0].Name(),
		WrittenAt: s.clock().UTC(),
	}

	if err := s.tiers[0].Put(ctx, entry); err != nil {
		return fmt.Errorf("cache put %s to %s: %w", key, s.tiers[0].Name(), err)
	}

	for _, t := range s.tiers[1:] {
		if err := t.Put(ctx, entry); err != nil {
			s.failures.Add(1)
			s.logger.Warn("remote cache write failed", "tier", t.Name(), "key", key, "error", err)
		}
	}
	return nil
}

// Stats is a snapshot of store counters.
type Stats struct {
	Hits      map[ir.Tier]int64 `json:"hits"`
	Misses    int64             `json:"misses"`
	Backfills int64             `json:"backfills"`
	Failures  int64             `json:"failures"`
}

// Stats returns the counters accumulated since New.
func (s *Store) Stats() Stats {
	hits := make(map[ir.Tier]int64, len(s.tiers))
	for i, t := range s.tiers {
		hits[t.Name()] = s.hits[i].Load()
	}
	return Stats{
		Hits:      hits,
		Misses:    s.misses.Load(),
		Backfills: s.backfills.Load(),
		Failures:  s.failures.Load(),
	}
}
