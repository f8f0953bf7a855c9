// Package contenthash derives the content key under which a web page and all
// of its derived state is stored. The key is a one-way digest of the page's
// canonical URL, so a caller can never pick the key it writes under.
package contenthash

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// HexLen is the width of an encoded content hash.
const HexLen = 128

var ErrMismatch = errors.New("content hash mismatch")

// Hash returns the SHA3-512 digest of the canonical URL as lowercase hex.
// The URL fragment never changes the identity of a page, so it is stripped
// before hashing.
func Hash(canonicalURL string) string {
	sum := sha3.Sum512([]byte(stripFragment(canonicalURL)))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the hash for canonicalURL and compares it against the
// value the caller supplied. A disagreement means the caller is trying to
// write under a key that does not belong to the URL.
func Verify(canonicalURL, supplied string) error {
	if !strings.EqualFold(strings.TrimSpace(supplied), Hash(canonicalURL)) {
		return ErrMismatch
	}
	return nil
}

func stripFragment(raw string) string {
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		return raw[:idx]
	}
	return raw
}
