package asyncmc

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultServerSelector(t *testing.T) {
	t.Run("consistency", func(t *testing.T) {
		first := DefaultServerSelector("test-key-123", 10)
		require.Equal(t, first, DefaultServerSelector("test-key-123", 10))
		require.Equal(t, first, DefaultServerSelector("test-key-123", 10))
	})

	t.Run("python-memcached compatible", func(t *testing.T) {
		// (crc32(key) >> 16) & 0x7fff, as computed by python-memcached
		tests := []struct {
			key  string
			hash uint32
		}{
			{"foo", 3187},
			{"key:set", 16101},
			{"test-key-123", 12099},
			{"memcached", 11903},
			{"a", 26807},
		}
		for _, tt := range tests {
			assert.Equal(t, tt.hash, crc15(tt.key), "key %q", tt.key)
			assert.Equal(t, int(tt.hash%3), DefaultServerSelector(tt.key, 3), "key %q", tt.key)
			assert.Equal(t, int(tt.hash%5), DefaultServerSelector(tt.key, 5), "key %q", tt.key)
		}
	})

	t.Run("bounds", func(t *testing.T) {
		// Returned index should always be within valid range
		keys := []string{"key1", "key2", "key3", "long-key-with-many-characters"}
		serverCounts := []int{1, 2, 5, 10, 100}

		for _, key := range keys {
			for _, count := range serverCounts {
				result := DefaultServerSelector(key, count)
				require.True(t, result >= 0 && result < count, "out of bounds: key=%s, serverCount=%d, result=%d", key, count, result)
			}
		}
	})

	t.Run("distribution", func(t *testing.T) {
		// Keys should be distributed across servers (not all going to one server)
		serverCount := 10
		distribution := make(map[int]int)

		for i := range 1000 {
			distribution[DefaultServerSelector(fmt.Sprintf("key-%d", i), serverCount)]++
		}

		require.Len(t, distribution, serverCount)
		for server, count := range distribution {
			require.Greater(t, count, 30, "server %d is underused", server)
		}
	})
}

func TestJumpServerSelector(t *testing.T) {
	t.Run("consistency", func(t *testing.T) {
		first := JumpServerSelector("test-key-123", 10)
		require.Equal(t, first, JumpServerSelector("test-key-123", 10))
	})

	t.Run("single server", func(t *testing.T) {
		for i := range 50 {
			require.Equal(t, 0, JumpServerSelector(fmt.Sprintf("key-%d", i), 1))
		}
	})

	t.Run("minimal movement", func(t *testing.T) {
		// Growing from 10 to 11 servers moves keys only to the new server
		moved := 0
		for i := range 1000 {
			key := fmt.Sprintf("key-%d", i)
			before := JumpServerSelector(key, 10)
			after := JumpServerSelector(key, 11)
			if before != after {
				require.Equal(t, 10, after, "key %s moved between existing servers", key)
				moved++
			}
		}
		require.Less(t, moved, 200)
	})
}

func TestStaticSelector(t *testing.T) {
	selector := staticSelector(3)
	assert.Equal(t, 3, selector("any", 5))
	assert.Equal(t, 1, selector("any", 2))
}
