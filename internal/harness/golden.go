package harness

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/promptinfra/internal/ir"
)

// TraceSnapshot captures the run trace and final ledger of a scenario.
// Artifact digests are left out; cache keys and costs are kept because they
// are pure functions of the request and salt.
type TraceSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Trace        []RunEvent     `json:"trace"`
	Ledger       []LedgerRecord `json:"ledger"`
}

// LedgerRecord is the snapshot view of one deployment record.
type LedgerRecord struct {
	DeploymentID         string            `json:"deployment_id"`
	CreatedAt            string            `json:"created_at"`
	Status               string            `json:"status"`
	ResourceCount        int               `json:"resource_count"`
	EstimatedMonthlyCost ir.USD            `json:"estimated_monthly_cost"`
	CacheKey             ir.CacheKey       `json:"cache_key"`
	Tags                 map[string]string `json:"tags"`
}

func newSnapshot(name string, result *Result) TraceSnapshot {
	snap := TraceSnapshot{
		ScenarioName: name,
		Trace:        result.Trace,
		Ledger:       make([]LedgerRecord, 0, len(result.Records)),
	}
	for _, rec := range result.Records {
		snap.Ledger = append(snap.Ledger, LedgerRecord{
			DeploymentID:         rec.ID,
			CreatedAt:            rec.CreatedAt.UTC().Format(time.RFC3339),
			Status:               string(rec.Status),
			ResourceCount:        rec.ResourceCount,
			EstimatedMonthlyCost: rec.EstimatedMonthlyCost,
			CacheKey:             rec.CacheKey,
			Tags:                 rec.Tags,
		})
	}
	return snap
}

// marshal renders the snapshot as indented JSON with a trailing newline.
func (s TraceSnapshot) marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares the snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := newSnapshot(scenarioName, result).marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
