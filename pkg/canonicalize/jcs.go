// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// serialization for deterministic content hashing of audit records.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
// Map keys are sorted by UTF-8 bytes and number formatting is normalized,
// so equal values always hash identically.
func JCS(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jcs: pre-marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs: transform failed: %w", err)
	}
	return canonical, nil
}

// CanonicalHash returns the SHA-256 digest of the canonical JSON form of v,
// prefixed with the algorithm name.
func CanonicalHash(v any) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 digest of raw bytes.
func HashBytes(b []byte) string {
	h := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(h[:])
}
