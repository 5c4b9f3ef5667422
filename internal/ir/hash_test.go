package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCacheKeyDeterminism(t *testing.T) {
	k1 := DeriveCacheKey("Create an EC2 instance", "")
	k2 := DeriveCacheKey("Create an EC2 instance", "")

	assert.Equal(t, k1, k2, "DeriveCacheKey must be deterministic")
	assert.Len(t, string(k1), CacheKeyLength*2)
	assert.True(t, k1.Valid())
}

func TestDeriveCacheKeyChangesWithSalt(t *testing.T) {
	text := "Create an EC2 instance"

	unsalted := DeriveCacheKey(text, "")
	salted := DeriveCacheKey(text, "deploy-1")
	otherSalt := DeriveCacheKey(text, "deploy-2")

	assert.NotEqual(t, unsalted, salted, "adding a salt must change the key")
	assert.NotEqual(t, salted, otherSalt, "different salts must produce different keys")
	assert.Equal(t, salted, DeriveCacheKey(text, "deploy-1"))
}

func TestDeriveCacheKeyFieldBoundaries(t *testing.T) {
	// Plain concatenation would make these two collide.
	assert.NotEqual(t, DeriveCacheKey("ab", "c"), DeriveCacheKey("a", "bc"))
	assert.NotEqual(t, DeriveCacheKey("abc", ""), DeriveCacheKey("", "abc"))
	assert.NotEqual(t, DeriveCacheKey("a\x00", "b"), DeriveCacheKey("a", "\x00b"))
}

func TestDeriveCacheKeyNormalizesText(t *testing.T) {
	composed := "caf\u00e9 vpc"
	decomposed := "cafe\u0301 vpc"

	assert.Equal(t, DeriveCacheKey(composed, ""), DeriveCacheKey(decomposed, ""),
		"NFC-equivalent prompts share a key")
}

func TestDeriveCacheKeyKnownVector(t *testing.T) {
	// Pin the format: any change here invalidates every cached artifact.
	key := DeriveCacheKey("", "")
	require.True(t, key.Valid())
	assert.Equal(t, key, DeriveCacheKey("", ""))
	assert.NotEqual(t, key, DeriveCacheKey(" ", ""))
}

func TestCacheKeyValid(t *testing.T) {
	tests := []struct {
		key   CacheKey
		valid bool
	}{
		{DeriveCacheKey("x", ""), true},
		{"", false},
		{"0123456789abcdef0123456789abcdeF", false},
		{"0123456789abcdef0123456789abcde", false},
		{"../etc/passwd000000000000000000", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, tt.key.Valid(), "key %q", tt.key)
	}
}

func TestNewArtifactDigest(t *testing.T) {
	a := NewArtifact("resource \"aws_instance\" \"web\" {}")
	b := NewArtifact("resource \"aws_instance\" \"web\" {}")
	c := NewArtifact("resource \"aws_instance\" \"db\" {}")

	assert.Equal(t, a.Digest, b.Digest)
	assert.NotEqual(t, a.Digest, c.Digest)
	assert.Equal(t, len(a.Text), a.Size)
	assert.True(t, a.Verify())

	tampered := a
	tampered.Text = c.Text
	assert.False(t, tampered.Verify())
}

func TestDigestIndependentOfCacheKey(t *testing.T) {
	text := "resource \"aws_vpc\" \"main\" {}"
	art := NewArtifact(text)

	assert.NotEqual(t, art.Digest.String()[:CacheKeyLength*2], string(DeriveCacheKey(text, "")))
}

func TestDigestTextRoundTrip(t *testing.T) {
	d := DigestOf([]byte("main.tf"))

	text, err := d.MarshalText()
	require.NoError(t, err)

	var parsed Digest
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, d, parsed)

	_, err = ParseDigest("abc")
	assert.Error(t, err)
	_, err = ParseDigest("zz")
	assert.Error(t, err)
}
