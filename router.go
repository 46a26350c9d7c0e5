package writebehind

import "github.com/unkn0wn-root/writebehind/internal/util"

// bucketFor routes key to one of n buckets. Every operation for a key lands
// in the same bucket, which is what keeps per-key order intact while buckets
// are drained in parallel.
func bucketFor(key string, n int) int {
	return util.Slot(key, n)
}
