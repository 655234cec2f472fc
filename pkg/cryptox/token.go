package cryptox

import (
	"crypto/sha256"
	"encoding/hex"
)

// FingerprintToken returns the lowercase hex SHA-256 of token, the form
// revocation lists store instead of the token itself.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
