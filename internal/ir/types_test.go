package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFieldNaming(t *testing.T) {
	rec := DeploymentRecord{
		ID:                   "dep-1",
		CreatedAt:            time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		Prompt:               "a vpc",
		ResourceCount:        2,
		EstimatedMonthlyCost: Cents(850),
		Tags:                 map[string]string{"source": "promptinfra"},
		Status:               StatusGenerated,
		CacheKey:             DeriveCacheKey("a vpc", ""),
		ArtifactDigest:       DigestOf([]byte("x")).String(),
	}
	data, err := json.Marshal(rec)
	require.NoError(t, err)

	// Verify snake_case JSON tags
	assert.Contains(t, string(data), `"deployment_id"`)
	assert.Contains(t, string(data), `"created_at"`)
	assert.Contains(t, string(data), `"resource_count"`)
	assert.Contains(t, string(data), `"estimated_monthly_cost":8.50`)
	assert.Contains(t, string(data), `"cache_key"`)
	assert.Contains(t, string(data), `"artifact_digest"`)

	// Verify NOT camelCase
	assert.NotContains(t, string(data), `"deploymentId"`)
	assert.NotContains(t, string(data), `"createdAt"`)
}

func TestCacheEntryJSON(t *testing.T) {
	entry := CacheEntry{
		Key:       DeriveCacheKey("a vpc", ""),
		Artifact:  NewArtifact("resource \"aws_vpc\" \"main\" {}"),
		Origin:    TierLocal,
		WrittenAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"written_at"`)
	assert.Contains(t, string(data), `"origin":"local"`)

	var decoded CacheEntry
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, entry, decoded)
	assert.True(t, decoded.Artifact.Verify())
}

func TestArtifactEmpty(t *testing.T) {
	assert.True(t, NewArtifact("").Empty())
	assert.False(t, NewArtifact(" ").Empty())
}

func TestDeploymentRecordCloneDoesNotAlias(t *testing.T) {
	rec := DeploymentRecord{ID: "dep-1", Tags: map[string]string{"team": "web"}}
	clone := rec.Clone()
	clone.Tags["team"] = "infra"

	assert.Equal(t, "web", rec.Tags["team"])
	assert.Nil(t, DeploymentRecord{}.Clone().Tags)
}
