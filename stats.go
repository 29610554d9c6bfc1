package asyncmc

import (
	"sync/atomic"
	"time"
)

// PoolStats contains statistics about a Router pool.
//
// Struct is optimized to fit within a single cache line (64 bytes).
// Fields are ordered largest to smallest for optimal memory layout.
type PoolStats struct {
	// Lifetime counters (uint64 - 8 bytes each)
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedRouters    uint64 // Total routers created
	DestroyedRouters  uint64 // Total routers destroyed
	AcquireErrors     uint64 // Failed acquire attempts
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	// Current state gauges (int32 - 4 bytes each)
	TotalRouters  int32 // Routers alive (active + idle)
	IdleRouters   int32 // Routers waiting in the pool
	ActiveRouters int32 // Routers lent to callers
	_             int32 // Padding to align to 64 bytes
}

// ClientStats contains statistics about client operations.
type ClientStats struct {
	Gets      uint64 // Keys requested by Get and MultiGet
	GetHits   uint64 // Keys found
	Stores    uint64 // Set, Add, Replace, Append and Prepend calls
	Deletes   uint64 // Delete calls
	Flushes   uint64 // FlushAll calls
	Errors    uint64 // Operations that returned an error
	DeadMarks uint64 // Times a server was marked dead
	Evictions uint64 // Idle routers closed by health checks
}

// poolStatsCollector provides internal methods for updating pool stats.
// Not exported - pools update their own stats.
type poolStatsCollector struct {
	stats *PoolStats
}

func newPoolStatsCollector() *poolStatsCollector {
	return &poolStatsCollector{
		stats: &PoolStats{},
	}
}

func (c *poolStatsCollector) recordAcquire() {
	atomic.AddUint64(&c.stats.AcquireCount, 1)
}

func (c *poolStatsCollector) recordAcquireWait(duration time.Duration) {
	atomic.AddUint64(&c.stats.AcquireWaitCount, 1)
	atomic.AddUint64(&c.stats.AcquireWaitTimeNs, uint64(duration.Nanoseconds()))
}

func (c *poolStatsCollector) recordCreate() {
	atomic.AddUint64(&c.stats.CreatedRouters, 1)
	atomic.AddInt32(&c.stats.TotalRouters, 1)
}

func (c *poolStatsCollector) recordDestroy(wasIdle bool) {
	atomic.AddUint64(&c.stats.DestroyedRouters, 1)
	atomic.AddInt32(&c.stats.TotalRouters, -1)
	if wasIdle {
		atomic.AddInt32(&c.stats.IdleRouters, -1)
	} else {
		atomic.AddInt32(&c.stats.ActiveRouters, -1)
	}
}

func (c *poolStatsCollector) recordAcquireError() {
	atomic.AddUint64(&c.stats.AcquireErrors, 1)
}

func (c *poolStatsCollector) recordAcquireFromIdle() {
	atomic.AddInt32(&c.stats.IdleRouters, -1)
	atomic.AddInt32(&c.stats.ActiveRouters, 1)
}

func (c *poolStatsCollector) recordActivate() {
	atomic.AddInt32(&c.stats.ActiveRouters, 1)
}

// recordIdle counts a freshly created router parked in the pool.
func (c *poolStatsCollector) recordIdle() {
	atomic.AddInt32(&c.stats.IdleRouters, 1)
}

func (c *poolStatsCollector) recordRelease() {
	atomic.AddInt32(&c.stats.IdleRouters, 1)
	atomic.AddInt32(&c.stats.ActiveRouters, -1)
}

func (c *poolStatsCollector) snapshot() PoolStats {
	return PoolStats{
		TotalRouters:      atomic.LoadInt32(&c.stats.TotalRouters),
		IdleRouters:       atomic.LoadInt32(&c.stats.IdleRouters),
		ActiveRouters:     atomic.LoadInt32(&c.stats.ActiveRouters),
		AcquireCount:      atomic.LoadUint64(&c.stats.AcquireCount),
		AcquireWaitCount:  atomic.LoadUint64(&c.stats.AcquireWaitCount),
		CreatedRouters:    atomic.LoadUint64(&c.stats.CreatedRouters),
		DestroyedRouters:  atomic.LoadUint64(&c.stats.DestroyedRouters),
		AcquireErrors:     atomic.LoadUint64(&c.stats.AcquireErrors),
		AcquireWaitTimeNs: atomic.LoadUint64(&c.stats.AcquireWaitTimeNs),
	}
}

// clientStatsCollector provides internal methods for updating client stats.
// Not exported - client updates its own stats.
type clientStatsCollector struct {
	stats *ClientStats
}

func newClientStatsCollector() *clientStatsCollector {
	return &clientStatsCollector{
		stats: &ClientStats{},
	}
}

func (c *clientStatsCollector) recordGets(requested, found int) {
	atomic.AddUint64(&c.stats.Gets, uint64(requested))
	atomic.AddUint64(&c.stats.GetHits, uint64(found))
}

func (c *clientStatsCollector) recordStore() {
	atomic.AddUint64(&c.stats.Stores, 1)
}

func (c *clientStatsCollector) recordDelete() {
	atomic.AddUint64(&c.stats.Deletes, 1)
}

func (c *clientStatsCollector) recordFlush() {
	atomic.AddUint64(&c.stats.Flushes, 1)
}

func (c *clientStatsCollector) recordError() {
	atomic.AddUint64(&c.stats.Errors, 1)
}

func (c *clientStatsCollector) recordDead(string) {
	atomic.AddUint64(&c.stats.DeadMarks, 1)
}

func (c *clientStatsCollector) recordEviction() {
	atomic.AddUint64(&c.stats.Evictions, 1)
}

func (c *clientStatsCollector) snapshot() ClientStats {
	return ClientStats{
		Gets:      atomic.LoadUint64(&c.stats.Gets),
		GetHits:   atomic.LoadUint64(&c.stats.GetHits),
		Stores:    atomic.LoadUint64(&c.stats.Stores),
		Deletes:   atomic.LoadUint64(&c.stats.Deletes),
		Flushes:   atomic.LoadUint64(&c.stats.Flushes),
		Errors:    atomic.LoadUint64(&c.stats.Errors),
		DeadMarks: atomic.LoadUint64(&c.stats.DeadMarks),
		Evictions: atomic.LoadUint64(&c.stats.Evictions),
	}
}
