package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/promptinfra/internal/ir"
	"github.com/roach88/promptinfra/internal/testutil"
)

func newS3(t *testing.T, objects *testutil.ObjectStore) *S3Tier {
	t.Helper()
	tier, err := NewS3Tier(objects, "artifacts", "terraform/", time.Second)
	require.NoError(t, err)
	return tier
}

func TestS3Tier_ObjectKey(t *testing.T) {
	tier := newS3(t, testutil.NewObjectStore())
	key := ir.DeriveCacheKey("x", "")
	assert.Equal(t, "terraform/"+key.String()+".tf", tier.ObjectKey(key))
}

func TestS3Tier_MissingObjectIsMiss(t *testing.T) {
	tier := newS3(t, testutil.NewObjectStore())

	_, ok, err := tier.Get(context.Background(), ir.DeriveCacheKey("x", ""))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Tier_PutWritesMetadata(t *testing.T) {
	objects := testutil.NewObjectStore()
	tier := newS3(t, objects)
	entry := sampleEntry(sampleTF)

	require.NoError(t, tier.Put(context.Background(), entry))

	obj, ok := objects.Lookup("artifacts", tier.ObjectKey(entry.Key))
	require.True(t, ok)
	assert.Equal(t, sampleTF, string(obj.Body))
	assert.Equal(t, SourceTag, obj.Metadata["source"])
	assert.Equal(t, entry.Artifact.Digest.String(), obj.Metadata["digest"])
	assert.Equal(t, "2026-10-16T09:00:00Z", obj.Metadata["cached_at"])
}

func TestS3Tier_GetReturnsRemoteOrigin(t *testing.T) {
	objects := testutil.NewObjectStore()
	tier := newS3(t, objects)
	entry := sampleEntry(sampleTF)
	require.NoError(t, tier.Put(context.Background(), entry))

	got, ok, err := tier.Get(context.Background(), entry.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.TierRemote, got.Origin)
	assert.Equal(t, entry.Artifact, got.Artifact)
	assert.True(t, entry.WrittenAt.Equal(got.WrittenAt))
}

func TestS3Tier_DigestMismatchIsCorrupt(t *testing.T) {
	objects := testutil.NewObjectStore()
	tier := newS3(t, objects)
	key := ir.DeriveCacheKey("x", "")
	objects.Seed("artifacts", tier.ObjectKey(key), []byte("tampered"), map[string]string{
		"digest": ir.DigestOf([]byte("original")).String(),
	})

	_, ok, err := tier.Get(context.Background(), key)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestS3Tier_EmptyObjectIsMiss(t *testing.T) {
	objects := testutil.NewObjectStore()
	tier := newS3(t, objects)
	key := ir.DeriveCacheKey("x", "")
	objects.Seed("artifacts", tier.ObjectKey(key), nil, nil)

	_, ok, err := tier.Get(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestS3Tier_OversizedObjectIsCorrupt(t *testing.T) {
	objects := testutil.NewObjectStore()
	tier := newS3(t, objects)
	key := ir.DeriveCacheKey("x", "")
	objects.Seed("artifacts", tier.ObjectKey(key), bytes.Repeat([]byte("a"), MaxArtifactSize+1), nil)

	_, ok, err := tier.Get(context.Background(), key)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestS3Tier_ClientError(t *testing.T) {
	objects := testutil.NewObjectStore()
	objects.GetErr = errors.New("connection reset")
	tier := newS3(t, objects)

	_, ok, err := tier.Get(context.Background(), ir.DeriveCacheKey("x", ""))
	assert.False(t, ok)
	assert.ErrorContains(t, err, "connection reset")
}

func TestNewS3Tier_Validation(t *testing.T) {
	_, err := NewS3Tier(nil, "b", "", 0)
	assert.Error(t, err)

	_, err = NewS3Tier(testutil.NewObjectStore(), "", "", 0)
	assert.Error(t, err)

	tier, err := NewS3Tier(testutil.NewObjectStore(), "b", "", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultRemoteTimeout, tier.timeout)
}
