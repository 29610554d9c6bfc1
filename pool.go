package asyncmc

import (
	"context"
	"time"
)

// Pool lends Routers to callers. A Router is either idle in the pool or held
// by exactly one caller, and the number of live Routers never exceeds the
// maximum size.
type Pool interface {
	// Acquire returns an idle Router, creates one when below the maximum size,
	// or blocks until one is released or ctx is done. The pool is first grown
	// to its minimum size.
	Acquire(ctx context.Context) (Resource, error)

	// AcquireAllIdle takes every idle Router at once, for maintenance.
	AcquireAllIdle() []Resource

	// Clear closes every idle Router. Routers in use are closed when released
	// only if the pool is closed or full.
	Clear()

	// Size returns the number of live Routers, idle and in use.
	Size() int32

	// Close closes idle Routers and rejects future acquisitions.
	Close()

	Stats() PoolStats
}

// Resource is a Router on loan from a Pool. Exactly one of Release,
// ReleaseUnused or Destroy must be called.
type Resource interface {
	Value() *Router
	Release()
	ReleaseUnused()
	Destroy()
	CreationTime() time.Time
	IdleDuration() time.Duration
}

// PoolFactory builds a Pool around a Router constructor.
type PoolFactory func(constructor func(ctx context.Context) (*Router, error), minSize, maxSize int32) (Pool, error)
