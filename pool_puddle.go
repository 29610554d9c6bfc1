package asyncmc

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// NewPuddlePool creates a pool backed by jackc/puddle.
// Unlike the channel pool, Close blocks until every Router is released.
func NewPuddlePool(constructor func(ctx context.Context) (*Router, error), minSize, maxSize int32) (Pool, error) {
	if minSize < 0 || minSize > maxSize {
		return nil, fmt.Errorf("asyncmc: pool min size %d out of range [0, %d]", minSize, maxSize)
	}

	p := &puddlePool{minSize: minSize}

	poolConfig := &puddle.Config[*Router]{
		Constructor: func(ctx context.Context) (*Router, error) {
			router, err := constructor(ctx)
			if err == nil {
				p.createdRouters.Add(1)
			}
			return router, err
		},
		Destructor: func(r *Router) {
			p.destroyedRouters.Add(1)
			_ = r.Close()
		},
		MaxSize: maxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// puddlePool wraps puddle.Pool to implement our Pool interface.
type puddlePool struct {
	pool             *puddle.Pool[*Router]
	minSize          int32
	createdRouters   atomic.Int64
	destroyedRouters atomic.Int64
}

func (p *puddlePool) Acquire(ctx context.Context) (Resource, error) {
	for p.pool.Stat().TotalResources() < p.minSize {
		if err := p.pool.CreateResource(ctx); err != nil {
			if errors.Is(err, puddle.ErrClosedPool) {
				return nil, ErrPoolClosed
			}
			break
		}
	}

	res, err := p.pool.Acquire(ctx)
	if err != nil {
		if errors.Is(err, puddle.ErrClosedPool) {
			return nil, ErrPoolClosed
		}
		return nil, err
	}
	return res, nil
}

func (p *puddlePool) AcquireAllIdle() []Resource {
	puddleResources := p.pool.AcquireAllIdle()
	resources := make([]Resource, len(puddleResources))
	for i, res := range puddleResources {
		resources[i] = res
	}
	return resources
}

func (p *puddlePool) Clear() {
	for _, res := range p.pool.AcquireAllIdle() {
		res.Destroy()
	}
}

func (p *puddlePool) Size() int32 {
	return p.pool.Stat().TotalResources()
}

func (p *puddlePool) Close() {
	p.pool.Close()
}

// Stats returns a snapshot of pool statistics by converting puddle's stats to our format.
func (p *puddlePool) Stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		TotalRouters:      s.TotalResources(),
		IdleRouters:       s.IdleResources(),
		ActiveRouters:     s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()), // Acquires that had to wait (pool was empty)
		CreatedRouters:    uint64(p.createdRouters.Load()),
		DestroyedRouters:  uint64(p.destroyedRouters.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}
