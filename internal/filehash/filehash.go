// Package filehash computes and re-derives the content digests spec.md
// §4.3 defines, so the Hash Stage, Copy Executor and Verification
// Post-Stage all agree on what a given Hash row actually represents.
// Grounded on internal/hashstage's original size||head||tail hybrid
// (teacher internal/engine/hash.go's streaming shape), factored out so a
// digest can be recomputed identically from PartialHashInfo alone rather
// than from the project's current settings.
package filehash

import (
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"dupvault/internal/model"
)

// BufferSize is the streaming read buffer, within spec.md §4.3's "≥64 KiB,
// typically 1 MiB" band.
const BufferSize = 1 << 20

// Compute hashes f per algo, producing the digest and — for the movie
// hybrid hash — the PartialHashInfo string to persist alongside the Hash
// row, so Recompute can reproduce the identical digest later regardless of
// the project's settings at verification time.
func Compute(f *os.File, size int64, fileName string, category model.Category, algo model.HashAlgorithm, movieChunkMB int64) ([]byte, string, error) {
	if algo == model.HashSizeName {
		return sizeNameDigest(size, fileName), "", nil
	}
	if category == model.CategoryMovie && movieChunkMB > 0 {
		return partialMovieHash(f, size, algo, movieChunkMB)
	}
	h, err := newHasher(algo)
	if err != nil {
		return nil, "", err
	}
	buf := make([]byte, BufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, "", err
	}
	return h.Sum(nil), "", nil
}

// Recompute reproduces the digest a Hash row (expected) was recorded with,
// reading path fresh: the size+name formula for HashSizeName, the hybrid
// size||head||tail formula at expected's own recorded chunk size for the
// movie partial hash, or a plain full-file hash otherwise. Copy Executor
// verification and the Verification Post-Stage both call this instead of
// hashing blindly, since a partial-hash project's full-file digest will
// never match its hybrid one.
func Recompute(path string, fileName string, expected model.Hash) ([]byte, error) {
	if expected.Algorithm == model.HashSizeName {
		return sizeNameDigest(expected.SizeBytes, fileName), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if expected.PartialHashInfo != "" {
		chunkMB, err := parseChunkMB(expected.PartialHashInfo)
		if err != nil {
			return nil, err
		}
		digest, _, err := partialMovieHash(f, expected.SizeBytes, expected.Algorithm, chunkMB)
		return digest, err
	}

	h, err := newHasher(expected.Algorithm)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, BufferSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func sizeNameDigest(size int64, fileName string) []byte {
	return []byte(fmt.Sprintf("%d:%s", size, fileName))
}

func parseChunkMB(info string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSuffix(info, "MB"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("filehash: malformed partial hash info %q: %w", info, err)
	}
	return n, nil
}

// partialMovieHash computes the algo digest of size || sha256(first N MB) ||
// sha256(last N MB), returning the chunk size as a PartialHashInfo string so it can be
// recorded alongside the hash row and recomputed identically later
// (spec.md §4.3's hybrid hash).
func partialMovieHash(f *os.File, size int64, algo model.HashAlgorithm, chunkMB int64) ([]byte, string, error) {
	chunkBytes := chunkMB * 1024 * 1024

	head, err := hashRange(f, 0, min64(chunkBytes, size))
	if err != nil {
		return nil, "", err
	}

	tailStart := size - chunkBytes
	if tailStart < 0 {
		tailStart = 0
	}
	tail, err := hashRange(f, tailStart, size-tailStart)
	if err != nil {
		return nil, "", err
	}

	combined, err := newHasher(algo)
	if err != nil {
		return nil, "", err
	}
	combined.Write(fmt.Appendf(nil, "%d", size))
	combined.Write(head)
	combined.Write(tail)

	return combined.Sum(nil), fmt.Sprintf("%dMB", chunkMB), nil
}

// hashRange always uses SHA-256 regardless of algo, matching the original
// hybrid fingerprint's fixed inner digest.
func hashRange(f *os.File, offset, length int64) ([]byte, error) {
	h := sha256.New()
	sr := io.NewSectionReader(f, offset, length)
	buf := make([]byte, BufferSize)
	if _, err := io.CopyBuffer(h, sr, buf); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func newHasher(algo model.HashAlgorithm) (hash.Hash, error) {
	switch algo {
	case model.HashSHA1:
		return sha1.New(), nil
	case model.HashSHA256:
		return sha256.New(), nil
	case model.HashSHA3_256:
		return sha3.New256(), nil
	default:
		return nil, errors.New("filehash: unsupported algorithm " + string(algo))
	}
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
