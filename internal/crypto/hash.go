package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256Hex returns the 0x-prefixed hex SHA-256 digest of data
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return "0x" + hex.EncodeToString(sum[:])
}
