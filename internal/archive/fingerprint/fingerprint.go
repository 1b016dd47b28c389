// Package fingerprint computes the content-addressed key used
// throughout the archive: the first 64 bits of a BLAKE3 digest,
// rendered as 16 lowercase hex characters.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Length is the fixed length, in hex characters, of a fingerprint.
const Length = 16

// bufSize bounds the streaming read so hashing never loads a whole
// file into memory
const bufSize = 1 << 20 // 1 MiB

// IOError wraps an underlying filesystem failure encountered while
// hashing.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("fingerprint: read %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// File streams a file's bytes through BLAKE3 and returns its 16-hex
// fingerprint. It never loads the file whole.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IOError{Path: path, Err: err}
	}
	defer f.Close()

	h := blake3.New()
	buf := make([]byte, bufSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", &IOError{Path: path, Err: err}
	}

	return Sum(h.Sum(nil)), nil
}

// Bytes fingerprints an in-memory buffer, used by tests and by small
// collaborator payloads (e.g. reference-map raw metadata blobs) that
// never touch disk.
func Bytes(data []byte) string {
	h := blake3.New()
	_, _ = h.Write(data)
	return Sum(h.Sum(nil))
}

// Sum renders a BLAKE3 digest (any length ≥ 8 bytes) as a 16-hex-char
// fingerprint, taking its first 64 bits.
func Sum(digest []byte) string {
	if len(digest) < 8 {
		// blake3.New().Sum(nil) always yields 32 bytes; this path is
		// unreachable in practice but keeps the function total.
		padded := make([]byte, 8)
		copy(padded, digest)
		digest = padded
	}
	return hex.EncodeToString(digest[:8])
}

// Valid reports whether s has the shape of a fingerprint: 16 lowercase
// hex characters.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
