package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenHex returns a random hex string of 2*nbytes characters.
func TokenHex(nbytes int) string {
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
