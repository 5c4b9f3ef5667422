package ir

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"
)

// DomainCacheKey prefixes every cache key preimage. The version suffix
// enables future algorithm migration; changing it invalidates every cached
// artifact.
const DomainCacheKey = "promptinfra/cachekey/v1"

// CacheKeyLength is the number of SHA-256 bytes kept in a CacheKey. Keys are
// compared by equality, so this is fixed for the lifetime of a deployment.
const CacheKeyLength = 16

// DeriveCacheKey computes the cache key for a request and optional salt.
//
// Format: SHA256(domain + 0x00 + len(text) + text + len(salt) + salt), with
// 8-byte big-endian length prefixes so that field boundaries are never
// ambiguous. The request text is NFC normalised first; the salt is used
// verbatim.
func DeriveCacheKey(text, salt string) CacheKey {
	h := sha256.New()
	h.Write([]byte(DomainCacheKey))
	h.Write([]byte{0x00})
	writeField := func(data []byte) {
		var length [8]byte
		binary.BigEndian.PutUint64(length[:], uint64(len(data)))
		h.Write(length[:])
		h.Write(data)
	}
	writeField(norm.NFC.Bytes([]byte(text)))
	writeField([]byte(salt))
	sum := h.Sum(nil)
	return CacheKey(hex.EncodeToString(sum[:CacheKeyLength]))
}

// Digest is a 32-byte BLAKE3 digest of artifact content.
type Digest [32]byte

// digestKey is the BLAKE3 key for artifact digests: the ASCII domain name
// zero-padded to 32 bytes.
var digestKey = [32]byte{
	'p', 'r', 'o', 'm', 'p', 't', 'i', 'n', 'f', 'r', 'a', '.', 'a', 'r', 't', 'i',
	'f', 'a', 'c', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// DigestOf computes the keyed BLAKE3 digest of data.
func DigestOf(data []byte) Digest {
	// NewKeyed only fails for a key that is not 32 bytes long.
	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("ir: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var d Digest
	copy(d[:], hasher.Sum(nil))
	return d
}

// String returns the hex encoding of the digest.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest parses a 64-character hex string into a Digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("parsing digest: %w", err)
	}
	if len(decoded) != len(d) {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(decoded), len(d))
	}
	copy(d[:], decoded)
	return d, nil
}

// MarshalText encodes the digest as hex so it reads naturally in JSON and
// YAML documents.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes a hex digest.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
