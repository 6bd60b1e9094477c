// Package canonicalize provides RFC 8785 (JSON Canonicalization Scheme)
// compliant serialization for deterministic hashing of custody entries
// and event payloads.
package canonicalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// JCS returns the RFC 8785 canonical JSON representation of v.
// Struct tags are respected; map keys are sorted lexicographically by
// UTF-8 bytes and number formatting follows ES6 serialization rules.
func JCS(v interface{}) ([]byte, error) {
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

// Digest returns the SHA-256 digest of the canonical JSON form of v,
// formatted as "sha256:<hex>".
func Digest(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return DigestBytes(b), nil
}

// DigestBytes computes the SHA-256 digest of raw bytes, formatted as
// "sha256:<hex>".
func DigestBytes(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
