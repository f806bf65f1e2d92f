// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme) serialization
// and SHA-256 digests for deterministic hashing of ledger records.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"
)

// DigestHexLen is the length of a lower-case hex SHA-256 digest.
const DigestHexLen = sha256.Size * 2

// JCS returns the RFC 8785 canonical JSON representation of v.
//
// v is marshalled with encoding/json first so struct tags are honoured, then the
// output is re-serialized by the JCS transform: object keys sorted by UTF-16 code
// units at every depth, no insignificant whitespace, no HTML escaping and ES6
// number formatting.
func JCS(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// Raw canonicalizes an already-encoded JSON document.
func Raw(doc []byte) ([]byte, error) {
	out, err := jcs.Transform(doc)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return out, nil
}

// CanonicalHash returns the SHA-256 hex digest of the canonical JSON representation of v.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 digest of data rendered as lower-case hex.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsDigest reports whether s looks like a lower-case hex SHA-256 digest.
func IsDigest(s string) bool {
	if len(s) != DigestHexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// String returns s in Unicode NFC so that visually identical identifiers
// produce identical canonical bytes.
func String(s string) string {
	return norm.NFC.String(s)
}

// StringSet returns the NFC-normalized, de-duplicated, sorted members of set.
// The result is never nil so that empty sets encode as [] rather than null.
func StringSet(set []string) []string {
	out := make([]string, 0, len(set))
	seen := make(map[string]struct{}, len(set))
	for _, s := range set {
		n := String(s)
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
