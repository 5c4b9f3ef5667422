package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promptinfra/internal/ir"
)

func TestUpsertDeployment_Insert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := createTestRecord("dep-1", t0)

	require.NoError(t, s.UpsertDeployment(ctx, rec))

	got, found, err := s.ReadDeployment(ctx, "dep-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, rec.ID, got.ID)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, rec.Prompt, got.Prompt)
	assert.Equal(t, rec.ResourceCount, got.ResourceCount)
	assert.Equal(t, rec.EstimatedMonthlyCost, got.EstimatedMonthlyCost)
	assert.Equal(t, rec.Tags, got.Tags)
	assert.Equal(t, rec.Status, got.Status)
	assert.Equal(t, rec.CacheKey, got.CacheKey)
	assert.Equal(t, rec.ArtifactDigest, got.ArtifactDigest)
	assert.Equal(t, rec.Version, got.Version)
}

func TestUpsertDeployment_ReplacesWholeRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := createTestRecord("dep-1", t0)
	b := ir.DeploymentRecord{
		ID:                   "dep-1",
		CreatedAt:            t0.Add(time.Hour),
		Prompt:               "create a VPC",
		ResourceCount:        3,
		EstimatedMonthlyCost: 0,
		Tags:                 map[string]string{"cost_center": "platform"},
		Status:               ir.StatusPublished,
	}

	require.NoError(t, s.UpsertDeployment(ctx, a))
	require.NoError(t, s.UpsertDeployment(ctx, b))

	var count int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM deployments").Scan(&count))
	assert.Equal(t, 1, count)

	got, found, err := s.ReadDeployment(ctx, "dep-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "create a VPC", got.Prompt)
	assert.Equal(t, 3, got.ResourceCount)
	assert.Equal(t, ir.USD(0), got.EstimatedMonthlyCost)
	assert.Equal(t, map[string]string{"cost_center": "platform"}, got.Tags)
	assert.Equal(t, ir.StatusPublished, got.Status)
	assert.Empty(t, got.CacheKey, "fields absent from B must not survive from A")
	assert.Empty(t, got.ArtifactDigest)
}

func TestUpsertDeployment_EmptyID(t *testing.T) {
	s := createTestStore(t)
	err := s.UpsertDeployment(context.Background(), ir.DeploymentRecord{})
	assert.Error(t, err)
}

func TestUpsertDeployment_NilTags(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	rec := createTestRecord("dep-1", t0)
	rec.Tags = nil

	require.NoError(t, s.UpsertDeployment(ctx, rec))
	got, _, err := s.ReadDeployment(ctx, "dep-1")
	require.NoError(t, err)
	assert.Empty(t, got.Tags)
}
