package transformations

import "hash/fnv"

// SurrogateKey derives a dimension surrogate key from a natural key.
// FNV-1a 64, masked to 63 bits so the key always fits a signed BIGINT.
// The same natural key yields the same surrogate key in every run and
// every batch, so repeated extractions never reassign identity.
func SurrogateKey(naturalKey string) int64 {
	h := fnv.New64a()
	h.Write([]byte(naturalKey))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}
