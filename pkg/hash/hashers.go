package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash"
	"github.com/spaolacci/murmur3"
)

// HashFunc hashes a key for directory routing. The 64-bit hash is narrowed
// to its low 32 bits; the directory masks off the low GlobalDepth bits.
type HashFunc func(key int64) uint32

// Comparator orders two keys, returning -1, 0, or +1. The index only
// consults it for equality.
type Comparator func(a, b int64) int

// getHash uses the given hasher function to calculate the hash of a key,
// narrowed to 32 bits.
func getHash(hasher func(b []byte) uint64, key int64) uint32 {
	buf := make([]byte, binary.MaxVarintLen64)
	binary.PutVarint(buf, key)
	return uint32(hasher(buf))
}

// XxHasher returns the xxHash hash of the given key.
func XxHasher(key int64) uint32 {
	return getHash(xxhash.Sum64, key)
}

// MurmurHasher returns the MurmurHash3 hash of the given key.
func MurmurHasher(key int64) uint32 {
	return getHash(murmur3.Sum64, key)
}

// Int64Comparator is the default key comparator.
func Int64Comparator(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
