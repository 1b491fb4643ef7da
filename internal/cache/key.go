package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// Key identifies one cached embedding. Vectors from different providers,
// models or dimensionalities never collide even for identical text.
type Key struct {
	Provider   string
	Model      string
	Dimensions int
	TextHash   string
}

// NewKey builds the key for text. Only the SHA-256 of the text is kept.
func NewKey(provider, model string, dimensions int, text string) Key {
	return Key{
		Provider:   provider,
		Model:      model,
		Dimensions: dimensions,
		TextHash:   hashString(text),
	}
}

// hashString returns SHA-256 hash of the input string as hex.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
