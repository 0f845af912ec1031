// Package hash computes content fingerprints used for change detection.
package hash

import (
	"crypto/md5" //nolint:gosec // change detection only, not integrity
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
)

// Supported algorithm names.
const (
	SHA256 = "sha256"
	MD5    = "md5"
)

// chunkSize is the read buffer size for streaming file hashing. Files are
// never loaded whole into memory.
const chunkSize = 4096

func newHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case SHA256:
		return sha256.New(), nil
	case MD5:
		return md5.New(), nil //nolint:gosec
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// Sum returns the lowercase hex digest of data under the given algorithm.
func Sum(data []byte, algorithm string) (string, error) {
	h, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}

	h.Write(data)

	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the lowercase hex digest of the file at path, reading it
// in fixed-size chunks.
func File(path, algorithm string) (string, error) {
	h, err := newHasher(algorithm)
	if err != nil {
		return "", err
	}

	f, err := os.Open(path) //nolint:gosec // G304: path comes from the directory walk
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
