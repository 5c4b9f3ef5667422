package harness

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunWithGolden_Scenarios(t *testing.T) {
	for _, name := range []string{
		"cache_salted_repeat",
		"remote_backfill",
		"publish_fallback",
		"publish_upload_failure",
		"identity_salt",
	} {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("../../testdata/scenarios", name+".yaml"))
			require.NoError(t, err)

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestAssertGolden_FromResult(t *testing.T) {
	scenario, err := LoadScenario("../../testdata/scenarios/publish_upload_failure.yaml")
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, "publish_upload_failure", result))
}

func TestTraceSnapshotJSON(t *testing.T) {
	result := sampleResult()
	data, err := newSnapshot("sample", result).marshal()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "sample", decoded["scenario_name"])
	assert.Len(t, decoded["trace"], 3)

	ledger := decoded["ledger"].([]any)
	require.Len(t, ledger, 2)
	first := ledger[0].(map[string]any)
	assert.Equal(t, "2026-10-16T09:00:00Z", first["created_at"])
	assert.Equal(t, 8.5, first["estimated_monthly_cost"])
	assert.NotContains(t, string(data), "artifact_digest")
	assert.Equal(t, byte('\n'), data[len(data)-1])
}

func TestTraceSnapshotJSON_Deterministic(t *testing.T) {
	a, err := newSnapshot("sample", sampleResult()).marshal()
	require.NoError(t, err)
	b, err := newSnapshot("sample", sampleResult()).marshal()
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
