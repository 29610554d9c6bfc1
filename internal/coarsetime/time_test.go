package coarsetime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNowFollowsClock(t *testing.T) {
	before := time.Now().Add(-tick)
	assert.False(t, Now().Before(before.Add(-tick)), "coarse time lags more than one tick")

	time.Sleep(3 * tick)
	assert.True(t, Now().After(before), "coarse time did not advance")
}

func TestSince(t *testing.T) {
	start := Now()
	time.Sleep(3 * tick)
	assert.GreaterOrEqual(t, Since(start), tick)
}

// BenchmarkTimeNow/time-8         	35926340	         32.82 ns/op	       0 B/op	       0 allocs/op
// BenchmarkTimeNow/coarsetime-8   	609668066	         1.950 ns/op	       0 B/op	       0 allocs/op
func BenchmarkTimeNow(b *testing.B) {
	var t time.Time

	b.Run("time", func(b *testing.B) {
		for b.Loop() {
			t = time.Now()
		}
	})

	b.Run("coarsetime", func(b *testing.B) {
		for b.Loop() {
			t = Now()
		}
	})

	_ = t
}
