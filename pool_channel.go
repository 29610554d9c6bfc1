package asyncmc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ErDmKo/asyncmc/internal/coarsetime"
)

// NewChannelPool creates the default channel-based pool.
//
// Idle Routers wait in a buffered channel; a second channel holds one token
// per live Router so that creation never exceeds maxSize. Callers beyond
// maxSize block until a Router is released.
func NewChannelPool(constructor func(ctx context.Context) (*Router, error), minSize, maxSize int32) (Pool, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("asyncmc: pool max size must be positive, got %d", maxSize)
	}
	if minSize < 0 || minSize > maxSize {
		return nil, fmt.Errorf("asyncmc: pool min size %d out of range [0, %d]", minSize, maxSize)
	}

	return &channelPool{
		constructor: constructor,
		minSize:     minSize,
		maxSize:     maxSize,
		idle:        make(chan *channelResource, maxSize),
		tokens:      make(chan struct{}, maxSize),
		stats:       newPoolStatsCollector(),
	}, nil
}

// channelResource implements Resource for channel pool.
type channelResource struct {
	router       *Router
	pool         *channelPool
	creationTime time.Time
	lastUsedTime time.Time
}

func (r *channelResource) Value() *Router {
	return r.router
}

func (r *channelResource) Release() {
	r.lastUsedTime = coarsetime.Now()
	r.pool.put(r)
}

func (r *channelResource) ReleaseUnused() {
	// Don't update lastUsedTime for health checks
	r.pool.put(r)
}

func (r *channelResource) Destroy() {
	r.pool.destroy(r, false)
}

func (r *channelResource) CreationTime() time.Time {
	return r.creationTime
}

func (r *channelResource) IdleDuration() time.Duration {
	return coarsetime.Since(r.lastUsedTime)
}

type channelPool struct {
	constructor func(ctx context.Context) (*Router, error)
	minSize     int32
	maxSize     int32

	idle   chan *channelResource
	tokens chan struct{}

	mu     sync.Mutex // guards closed and sends on idle
	closed bool

	stats *poolStatsCollector
}

func (p *channelPool) Acquire(ctx context.Context) (Resource, error) {
	p.stats.recordAcquire()

	if err := p.fillToMin(ctx); err != nil {
		p.stats.recordAcquireError()
		return nil, err
	}

	// Try to get an idle router from the pool first
	select {
	case res, ok := <-p.idle:
		if !ok {
			p.stats.recordAcquireError()
			return nil, ErrPoolClosed
		}
		p.stats.recordAcquireFromIdle()
		return res, nil
	default:
	}

	waitStart := coarsetime.Now()
	select {
	case res, ok := <-p.idle:
		if !ok {
			p.stats.recordAcquireError()
			return nil, ErrPoolClosed
		}
		p.stats.recordAcquireWait(coarsetime.Since(waitStart))
		p.stats.recordAcquireFromIdle()
		return res, nil

	case p.tokens <- struct{}{}:
		res, err := p.create(ctx)
		if err != nil {
			p.stats.recordAcquireError()
			return nil, err
		}
		p.stats.recordActivate()
		return res, nil

	case <-ctx.Done():
		p.stats.recordAcquireError()
		return nil, ctx.Err()
	}
}

// fillToMin creates idle routers until the pool holds minSize routers.
func (p *channelPool) fillToMin(ctx context.Context) error {
	for int32(len(p.tokens)) < p.minSize {
		select {
		case p.tokens <- struct{}{}:
		default:
			return nil
		}

		res, err := p.create(ctx)
		if err != nil {
			return err
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			p.stats.recordActivate()
			p.destroy(res, false)
			return ErrPoolClosed
		}
		p.idle <- res // cannot block: idle holds at most maxSize routers
		p.stats.recordIdle()
		p.mu.Unlock()
	}
	return nil
}

// create builds a router for a token the caller already holds.
func (p *channelPool) create(ctx context.Context) (*channelResource, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		<-p.tokens
		return nil, ErrPoolClosed
	}

	router, err := p.constructor(ctx)
	if err != nil {
		<-p.tokens
		return nil, err
	}

	p.stats.recordCreate()
	now := coarsetime.Now()
	return &channelResource{
		router:       router,
		pool:         p,
		creationTime: now,
		lastUsedTime: now,
	}, nil
}

func (p *channelPool) put(res *channelResource) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.destroy(res, false)
		return
	}

	select {
	case p.idle <- res:
		p.stats.recordRelease()
		p.mu.Unlock()
	default:
		// More routers than idle slots, close this one
		p.mu.Unlock()
		p.destroy(res, false)
	}
}

func (p *channelPool) destroy(res *channelResource, wasIdle bool) {
	_ = res.router.Close()
	<-p.tokens
	p.stats.recordDestroy(wasIdle)
}

func (p *channelPool) AcquireAllIdle() []Resource {
	var idle []Resource

	// Drain all idle routers from the channel
	for {
		select {
		case res, ok := <-p.idle:
			if !ok {
				return idle
			}
			p.stats.recordAcquireFromIdle()
			idle = append(idle, res)
		default:
			return idle
		}
	}
}

func (p *channelPool) Clear() {
	for {
		select {
		case res, ok := <-p.idle:
			if !ok {
				return
			}
			p.destroy(res, true)
		default:
			return
		}
	}
}

func (p *channelPool) Size() int32 {
	return int32(len(p.tokens))
}

func (p *channelPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.idle)
	p.mu.Unlock()

	// Close all idle routers
	for res := range p.idle {
		p.destroy(res, true)
	}
}

// Stats returns a snapshot of pool statistics.
func (p *channelPool) Stats() PoolStats {
	return p.stats.snapshot()
}
