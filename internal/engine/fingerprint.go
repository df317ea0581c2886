package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fingerprintLength is the number of hex characters kept from the digest.
const fingerprintLength = 16

// Normalize lower-cases text, collapses runs of whitespace to one space and
// trims the ends. Inputs differing only in case or spacing normalize equal.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Fingerprint returns the cache key for text.
func Fingerprint(text string) string {
	return fingerprintNormalized(Normalize(text))
}

func fingerprintNormalized(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])[:fingerprintLength]
}
