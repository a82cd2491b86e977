package utils

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Checksum computes the BLAKE3 digest of data as a hex string.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
