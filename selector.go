package asyncmc

import (
	"hash/crc32"

	"github.com/ErDmKo/asyncmc/internal/jump"
	"github.com/zeebo/xxh3"
)

// ServerSelector picks the index of the server that owns key.
// serverCount is always at least 1 and the result must be in [0, serverCount).
type ServerSelector func(key string, serverCount int) int

// DefaultServerSelector hashes the key with CRC32, reduces it to a positive
// 15-bit value (zero becomes one) and takes it modulo the server count.
//
// This is the hash used by python-memcached and its descendants, so a fleet
// shared with those clients keeps the same key placement.
func DefaultServerSelector(key string, serverCount int) int {
	return int(crc15(key) % uint32(serverCount))
}

func crc15(key string) uint32 {
	h := (crc32.ChecksumIEEE([]byte(key)) >> 16) & 0x7fff
	if h == 0 {
		return 1
	}
	return h
}

// JumpServerSelector uses Jump Hash over xxh3 for server selection.
// Fewer keys move when servers are added or removed, at the cost of placement
// compatibility with other clients.
func JumpServerSelector(key string, serverCount int) int {
	return jump.Hash(xxh3.HashString(key), serverCount)
}

// staticSelector is used in tests to always select a specific server.
func staticSelector(index int) ServerSelector {
	return func(key string, serverCount int) int {
		return index % serverCount
	}
}
