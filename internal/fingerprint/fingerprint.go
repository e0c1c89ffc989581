// Package fingerprint computes the content hashes used to detect whether a
// patch file changed between syncs.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a supported hash function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// Hasher fingerprints file contents. The zero value of Fingerprint ("")
// stands for a file that does not exist.
type Hasher interface {
	File(path string) (string, error)
	Bytes(data []byte) string
}

// New returns the hasher for the given algorithm.
func New(algo Algorithm) (Hasher, error) {
	switch algo {
	case SHA256, "":
		return sha256Hasher{}, nil
	case BLAKE3:
		return blake3Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown fingerprint algorithm %q", algo)
	}
}

// sha256Hasher renders digests as upper-case hex, the format of checksum
// records written by earlier tooling.
type sha256Hasher struct{}

func (sha256Hasher) File(path string) (string, error) {
	sum, err := hashFile(path, sha256.New())
	if err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(sum)), nil
}

func (sha256Hasher) Bytes(data []byte) string {
	sum := sha256.Sum256(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// blake3Hasher prefixes digests with the algorithm name so records from
// different algorithms never compare equal.
type blake3Hasher struct{}

func (blake3Hasher) File(path string) (string, error) {
	sum, err := hashFile(path, blake3.New())
	if err != nil {
		return "", err
	}
	return string(BLAKE3) + ":" + hex.EncodeToString(sum), nil
}

func (blake3Hasher) Bytes(data []byte) string {
	h := blake3.New()
	_, _ = h.Write(data)
	return string(BLAKE3) + ":" + hex.EncodeToString(h.Sum(nil))
}

func hashFile(path string, h hash.Hash) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}
	return h.Sum(nil), nil
}
