package pipeline

import (
	"sync"

	"github.com/google/uuid"
)

// IdentityGenerator mints deployment identities.
type IdentityGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 deployment identities.
//
// Ledger listings sorted by identity come out in creation order, which keeps
// the file backend's directory readable.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequenceGenerator returns predetermined identities for testing.
//
// Thread-safety: SequenceGenerator is safe for concurrent use via internal mutex.
type SequenceGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewSequenceGenerator creates a generator that returns ids in order.
//
//	gen := NewSequenceGenerator("dep-1", "dep-2")
//	gen.Generate() // "dep-1"
//	gen.Generate() // "dep-2"
//	gen.Generate() // panic: all identities exhausted
func NewSequenceGenerator(ids ...string) *SequenceGenerator {
	return &SequenceGenerator{ids: ids}
}

// Generate returns the next predetermined identity.
//
// Panics once every identity has been consumed, so a test that runs more
// pipelines than it planned for fails loudly.
func (g *SequenceGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("SequenceGenerator: all identities exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
