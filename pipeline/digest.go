package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// Fingerprint returns a short stable digest of a file's current content:
// SHA-256 truncated to 16 hex characters. Identical bytes always produce
// identical digests; collision resistance beyond change detection is not
// a goal here.
func Fingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16], nil
}
