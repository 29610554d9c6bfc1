// Package coarsetime provides a clock updated at a fixed interval (50ms) in a
// separate goroutine, to reduce the overhead of frequent time.Now() calls.
//
// Readings may lag the real time by up to one tick. Use it for idle tracking,
// not for deadlines.
package coarsetime

import (
	"sync/atomic"
	"time"
)

const tick = 50 * time.Millisecond

var nowNanos atomic.Int64

func init() {
	nowNanos.Store(time.Now().UnixNano())

	ticker := time.NewTicker(tick)
	go func() {
		for t := range ticker.C {
			nowNanos.Store(t.UnixNano())
		}
	}()
}

// Now returns the coarse current time. It carries no monotonic reading.
func Now() time.Time {
	return time.Unix(0, nowNanos.Load())
}

// Since returns the coarse time elapsed since t.
func Since(t time.Time) time.Duration {
	return Now().Sub(t)
}
