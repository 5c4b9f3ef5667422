package testutil

// FixedIdentity generates the same deployment identity every time.
//
// Scenarios that pin an identity use it so two runs upsert the same ledger
// record and salt the cache key identically.
//
// Thread-safety: FixedIdentity is stateless and safe for concurrent use.
type FixedIdentity struct {
	id string
}

// NewFixedIdentity creates a generator that always returns id.
//
// If id is empty, Generate() returns "test-deployment".
func NewFixedIdentity(id string) *FixedIdentity {
	if id == "" {
		id = "test-deployment"
	}
	return &FixedIdentity{id: id}
}

// Generate returns the fixed identity.
func (g *FixedIdentity) Generate() string {
	return g.id
}
