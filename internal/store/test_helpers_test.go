package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/promptinfra/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with minimal required fields.
func createTestRecord(id string, createdAt time.Time) ir.DeploymentRecord {
	return ir.DeploymentRecord{
		ID:                   id,
		CreatedAt:            createdAt,
		Prompt:               "create an EC2 instance",
		ResourceCount:        1,
		EstimatedMonthlyCost: ir.Cents(850),
		Tags:                 map[string]string{"deployment_id": id, "source": "promptinfra"},
		Status:               ir.StatusGenerated,
		CacheKey:             ir.DeriveCacheKey("create an EC2 instance", ""),
		ArtifactDigest:       ir.DigestOf([]byte("x")).String(),
		Version:              ir.RecordVersion,
	}
}

var t0 = time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
