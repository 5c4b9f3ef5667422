package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/promptinfra/internal/codec"
	"github.com/roach88/promptinfra/internal/fsutil"
	"github.com/roach88/promptinfra/internal/ir"
)

// envelopeVersion is bumped when the envelope layout changes. Entries with
// another version read as corrupt and are regenerated.
const envelopeVersion = 1

// MaxArtifactSize caps the decoded size of one cached artifact. Entries
// claiming more read as corrupt.
const MaxArtifactSize = 8 << 20

// envelope is the on-disk form of one local cache entry.
type envelope struct {
	Version     int         `json:"v"`
	Key         ir.CacheKey `json:"key"`
	Digest      ir.Digest   `json:"digest"`
	Size        int         `json:"size"`
	WrittenAt   time.Time   `json:"written_at"`
	Compression Compression `json:"compression"`
	Body        []byte      `json:"body"`
}

// LocalTier stores one file per key under a sharded directory tree:
// {root}/{key[0:2]}/{key}.cbor.
type LocalTier struct {
	root        string
	compression Compression
}

// LocalOption configures a LocalTier.
type LocalOption func(*LocalTier)

// WithCompression selects the body compression for new entries. Existing
// entries are read whatever they were written with.
func WithCompression(c Compression) LocalOption {
	return func(t *LocalTier) {
		t.compression = c
	}
}

// NewLocalTier opens (creating if needed) a local tier rooted at root.
func NewLocalTier(root string, opts ...LocalOption) (*LocalTier, error) {
	if root == "" {
		return nil, errors.New("local cache root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}
	t := &LocalTier{root: root, compression: CompressionZstd}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns ir.TierLocal.
func (t *LocalTier) Name() ir.Tier { return ir.TierLocal }

// Root returns the cache root directory.
func (t *LocalTier) Root() string { return t.root }

// Path returns the file that holds key.
func (t *LocalTier) Path(key ir.CacheKey) string {
	k := key.String()
	return filepath.Join(t.root, k[:2], k+".cbor")
}

// Get reads key from disk. A missing file is a miss.
func (t *LocalTier) Get(ctx context.Context, key ir.CacheKey) (ir.CacheEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return ir.CacheEntry{}, false, err
	}
	if !key.Valid() {
		return ir.CacheEntry{}, false, fmt.Errorf("invalid cache key %q", key)
	}

	data, err := os.ReadFile(t.Path(key))
	if errors.Is(err, os.ErrNotExist) {
		return ir.CacheEntry{}, false, nil
	}
	if err != nil {
		return ir.CacheEntry{}, false, fmt.Errorf("reading cache entry %s: %w", key, err)
	}

	entry, err := decodeEnvelope(key, data)
	if err != nil {
		return ir.CacheEntry{}, false, err
	}
	return entry, true, nil
}

// Put writes entry atomically, replacing any existing file for its key.
func (t *LocalTier) Put(ctx context.Context, entry ir.CacheEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !entry.Key.Valid() {
		return fmt.Errorf("invalid cache key %q", entry.Key)
	}

	body, used, err := compress([]byte(entry.Artifact.Text), t.compression)
	if err != nil {
		return fmt.Errorf("compressing cache entry %s: %w", entry.Key, err)
	}

	data, err := codec.Marshal(envelope{
		Version:     envelopeVersion,
		Key:         entry.Key,
		Digest:      entry.Artifact.Digest,
		Size:        entry.Artifact.Size,
		WrittenAt:   entry.WrittenAt.UTC(),
		Compression: used,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", entry.Key, err)
	}

	if err := fsutil.WriteFileAtomic(t.Path(entry.Key), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", entry.Key, err)
	}
	return nil
}

// ReadRaw returns the undecoded envelope bytes for key.
func (t *LocalTier) ReadRaw(key ir.CacheKey) ([]byte, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("invalid cache key %q", key)
	}
	return os.ReadFile(t.Path(key))
}

func decodeEnvelope(key ir.CacheKey, data []byte) (ir.CacheEntry, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return ir.CacheEntry{}, fmt.Errorf("%w: %s: decoding envelope: %v", ErrCorrupt, key, err)
	}
	if env.Version != envelopeVersion {
		return ir.CacheEntry{}, fmt.Errorf("%w: %s: envelope version %d", ErrCorrupt, key, env.Version)
	}
	if env.Key != key {
		return ir.CacheEntry{}, fmt.Errorf("%w: %s: envelope holds key %s", ErrCorrupt, key, env.Key)
	}

	if env.Size < 0 || env.Size > MaxArtifactSize {
		return ir.CacheEntry{}, fmt.Errorf("%w: %s: size %d out of range", ErrCorrupt, key, env.Size)
	}

	text, err := decompress(env.Body, env.Compression, env.Size)
	if err != nil {
		return ir.CacheEntry{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}

	artifact := ir.Artifact{Text: string(text), Size: env.Size, Digest: env.Digest}
	if !artifact.Verify() {
		return ir.CacheEntry{}, fmt.Errorf("%w: %s: digest mismatch", ErrCorrupt, key)
	}

	return ir.CacheEntry{
		Key:       key,
		Artifact:  artifact,
		Origin:    ir.TierLocal,
		WrittenAt: env.WrittenAt,
	}, nil
}
