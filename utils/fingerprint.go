// utils/fingerprint.go - Content fingerprints for exact-duplicate detection
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint returns the deterministic content identifier for a blob of
// media bytes: the hex sha256 of the bytes.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FallbackFingerprint derives a fingerprint from provider metadata when the
// bytes are not available for hashing. Provider id plus size keeps it stable
// and unique enough per provider namespace.
func FallbackFingerprint(providerAssetID string, sizeBytes int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", providerAssetID, sizeBytes)))
	return hex.EncodeToString(sum[:])
}
