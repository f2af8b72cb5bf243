// Package checksum derives content fingerprints and stable note identifiers.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// noteIDLen is the number of hex characters kept for a note id.
const noteIDLen = 16

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// NoteID returns the stable identifier for the note stored at path.
// It depends only on the slash-normalized path, never on content.
func NoteID(path string) string {
	return Sum([]byte(NormalizePath(path)))[:noteIDLen]
}

// NormalizePath cleans a vault-relative path and converts it to forward slashes.
func NormalizePath(path string) string {
	p := filepath.ToSlash(filepath.Clean(path))
	return strings.TrimPrefix(p, "./")
}
