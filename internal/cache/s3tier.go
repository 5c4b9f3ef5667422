package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/roach88/promptinfra/internal/ir"
)

// Object metadata written alongside every remote entry.
const (
	metaCachedAt = "cached_at"
	metaSource   = "source"
	metaDigest   = "digest"

	// SourceTag marks objects and ledger items written by this tool.
	SourceTag = "promptinfra"
)

// DefaultRemoteTimeout bounds each S3 call.
const DefaultRemoteTimeout = 10 * time.Second

// ObjectClient is the subset of the S3 API the remote tier uses.
// *s3.Client satisfies it.
type ObjectClient interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Tier stores entries as plain text objects at {prefix}{key}.tf.
type S3Tier struct {
	client  ObjectClient
	bucket  string
	prefix  string
	timeout time.Duration
}

// NewS3Tier builds a remote tier over client. A zero timeout uses
// DefaultRemoteTimeout.
func NewS3Tier(client ObjectClient, bucket, prefix string, timeout time.Duration) (*S3Tier, error) {
	if client == nil {
		return nil, errors.New("s3 tier: nil client")
	}
	if bucket == "" {
		return nil, errors.New("s3 tier: bucket is empty")
	}
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &S3Tier{client: client, bucket: bucket, prefix: prefix, timeout: timeout}, nil
}

// Name returns ir.TierRemote.
func (t *S3Tier) Name() ir.Tier { return ir.TierRemote }

// ObjectKey returns the object key that holds key.
func (t *S3Tier) ObjectKey(key ir.CacheKey) string {
	return t.prefix + key.String() + ".tf"
}

// Get fetches key. A missing or empty object is a miss.
func (t *S3Tier) Get(ctx context.Context, key ir.CacheKey) (ir.CacheEntry, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	out, err := t.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(t.ObjectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return ir.CacheEntry{}, false, nil
		}
		return ir.CacheEntry{}, false, fmt.Errorf("s3 get %s: %w", t.ObjectKey(key), err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, MaxArtifactSize+1))
	if err != nil {
		return ir.CacheEntry{}, false, fmt.Errorf("s3 get %s: reading body: %w", t.ObjectKey(key), err)
	}
	// Generation never yields an empty artifact, so an empty object is a
	// stray placeholder rather than a cached result.
	if len(body) == 0 {
		return ir.CacheEntry{}, false, nil
	}
	if len(body) > MaxArtifactSize {
		return ir.CacheEntry{}, false, fmt.Errorf("%w: s3 object %s: larger than %d bytes", ErrCorrupt, t.ObjectKey(key), MaxArtifactSize)
	}

	artifact := ir.NewArtifact(string(body))
	if want, ok := out.Metadata[metaDigest]; ok {
		d, err := ir.ParseDigest(want)
		if err != nil || d != artifact.Digest {
			return ir.CacheEntry{}, false, fmt.Errorf("%w: s3 object %s: digest mismatch", ErrCorrupt, t.ObjectKey(key))
		}
	}

	entry := ir.CacheEntry{Key: key, Artifact: artifact, Origin: ir.TierRemote}
	if ts, ok := out.Metadata[metaCachedAt]; ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.WrittenAt = parsed
		}
	}
	return entry, true, nil
}

// Put uploads entry, replacing any existing object.
func (t *S3Tier) Put(ctx context.Context, entry ir.CacheEntry) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	_, err := t.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(t.bucket),
		Key:         aws.String(t.ObjectKey(entry.Key)),
		Body:        bytes.NewReader([]byte(entry.Artifact.Text)),
		ContentType: aws.String("text/plain"),
		Metadata: map[string]string{
			metaCachedAt: entry.WrittenAt.UTC().Format(time.RFC3339Nano),
			metaSource:   SourceTag,
			metaDigest:   entry.Artifact.Digest.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", t.ObjectKey(entry.Key), err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var resp *awshttp.ResponseError
	if errors.As(err, &resp) && resp.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}
