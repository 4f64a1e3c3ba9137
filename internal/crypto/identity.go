// Package crypto implements credential identity hashing and at-rest sealing.
package crypto

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// IdentityLen is the length of an identity string in hex characters (128 bits).
const IdentityLen = 32

// Identity returns a stable fixed-length key for a credential value.
// Callers reject empty values before hashing.
func Identity(value string) string {
	sum := blake2b.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:IdentityLen]
}
