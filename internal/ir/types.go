package ir

import (
	"time"
)

// CacheKey is the content-addressed identifier of a request. It is a fixed
// length lowercase hex string produced by DeriveCacheKey.
type CacheKey string

// String returns the key as a plain string.
func (k CacheKey) String() string { return string(k) }

// Valid reports whether k has the shape DeriveCacheKey produces.
func (k CacheKey) Valid() bool {
	if len(k) != CacheKeyLength*2 {
		return false
	}
	for _, c := range k {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Artifact is generated infrastructure code plus its size and content digest.
// The digest is computed from the text alone and is unrelated to the cache key
// the artifact was stored under.
type Artifact struct {
	Text   string `json:"text"`
	Size   int    `json:"size"`
	Digest Digest `json:"digest"`
}

// NewArtifact builds an Artifact for text, computing size and digest.
func NewArtifact(text string) Artifact {
	return Artifact{
		Text:   text,
		Size:   len(text),
		Digest: DigestOf([]byte(text)),
	}
}

// Verify reports whether the stored size and digest match the text.
func (a Artifact) Verify() bool {
	return a.Size == len(a.Text) && a.Digest == DigestOf([]byte(a.Text))
}

// Empty reports whether the artifact carries no usable text.
func (a Artifact) Empty() bool {
	return len(a.Text) == 0
}

// Tier names a cache tier. Tier 0 is always the local filesystem.
type Tier string

const (
	TierLocal  Tier = "local"
	TierRemote Tier = "s3"
)

// CacheEntry is an artifact as held by one cache tier.
type CacheEntry struct {
	Key       CacheKey  `json:"key"`
	Artifact  Artifact  `json:"artifact"`
	Origin    Tier      `json:"origin"`
	WrittenAt time.Time `json:"written_at"`
}

// DeploymentStatus is the lifecycle status stored on a deployment record.
type DeploymentStatus string

const (
	StatusGenerated DeploymentStatus = "generated"
	StatusPublished DeploymentStatus = "published"
)
