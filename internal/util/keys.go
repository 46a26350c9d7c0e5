package util

import (
	"encoding/hex"

	"github.com/cespare/xxhash/v2"
)

// Slot maps key onto [0, n). The hash is seedless, so the mapping is the
// same in every process given the same n. n <= 1 maps everything to 0.
func Slot(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(key) % uint64(n))
}

// Digest returns a short, stable hex digest of key for logs that must not
// carry raw keys.
func Digest(key string) string {
	var b [8]byte
	h := xxhash.Sum64String(key)
	for i := 7; i >= 0; i-- {
		b[i] = byte(h)
		h >>= 8
	}
	return hex.EncodeToString(b[:])
}
