package asyncmc

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ErDmKo/asyncmc/text"
)

const (
	DefaultMinSize        = 1
	DefaultMaxSize        = 15
	DefaultDeadRetry      = 30 * time.Second
	DefaultConnectTimeout = 3 * time.Second
	DefaultServerRetries  = 10
	DefaultMaxValueSize   = text.MaxValueLength
)

// Config holds configuration for the client and its Router pool.
// Zero values select the defaults.
type Config struct {
	// MinSize is the number of Routers created before the first one is lent.
	// Default: 1.
	MinSize int32

	// MaxSize bounds the number of Routers, and so the number of sockets per
	// server. Callers beyond it block. Default: 15.
	MaxSize int32

	// DeadRetry is how long a server stays quarantined after a connection
	// failure. Negative disables quarantine. Default: 30s.
	DeadRetry time.Duration

	// ConnectTimeout bounds a connection attempt across all resolved addresses.
	// Default: 3s.
	ConnectTimeout time.Duration

	// IOTimeout bounds each exchange with a server. Zero means no limit
	// beyond the context deadline.
	IOTimeout time.Duration

	// ServerRetries is how many times a key is rehashed when its server is
	// quarantined. Negative disables rehashing. Default: 10.
	ServerRetries int

	// MaxValueSize caps the data block of a get reply. A server announcing a
	// larger value gets its connection closed with a ProtocolError.
	// Default: 1GiB, memcached's own ceiling.
	MaxValueSize int

	// FlushOnReconnect sends flush_all to a server when reconnecting after it
	// was marked dead, so that no stale data is served.
	FlushOnReconnect bool

	// HealthCheckInterval is how often idle Routers are inspected.
	// Zero disables health checks.
	HealthCheckInterval time.Duration

	// MaxIdleTime closes idle Routers unused for longer, down to MinSize.
	// Only applied by health checks. Zero means no limit.
	MaxIdleTime time.Duration

	// Debug logs every command at debug level to stderr when Logger is nil.
	Debug bool

	// Logger receives the client logs. Nil discards them unless Debug is set.
	Logger *slog.Logger

	// Dialer is the net.Dialer used to create new connections.
	// If nil, the default net.Dialer is used.
	Dialer *net.Dialer

	// SelectServer picks the server for a key.
	// If nil, uses DefaultServerSelector (CRC32-based).
	SelectServer ServerSelector

	// Pool is the pool factory. If nil, uses NewChannelPool.
	Pool PoolFactory

	// for testing purposes only
	dial dialFunc
}

func (c Config) withDefaults() Config {
	if c.MinSize == 0 {
		c.MinSize = DefaultMinSize
	}
	if c.MaxSize == 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.MinSize > c.MaxSize {
		c.MinSize = c.MaxSize
	}
	if c.DeadRetry == 0 {
		c.DeadRetry = DefaultDeadRetry
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.ServerRetries == 0 {
		c.ServerRetries = DefaultServerRetries
	} else if c.ServerRetries < 0 {
		c.ServerRetries = 0
	}
	if c.MaxValueSize <= 0 || c.MaxValueSize > text.MaxValueLength {
		c.MaxValueSize = DefaultMaxValueSize
	}
	if c.SelectServer == nil {
		c.SelectServer = DefaultServerSelector
	}
	if c.Pool == nil {
		c.Pool = NewChannelPool
	}
	if c.Logger == nil {
		if c.Debug {
			c.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		} else {
			c.Logger = slog.New(slog.DiscardHandler)
		}
	}
	if c.dial == nil {
		dialer := c.Dialer
		if dialer == nil {
			dialer = &net.Dialer{}
		}
		c.dial = dialer.DialContext
	}
	return c
}

// Client is a memcached client over a pool of Routers.
// It is safe for concurrent use.
type Client struct {
	servers []string
	config  Config
	pool    Pool
	logger  *slog.Logger
	stats   *clientStatsCollector

	// Health check management
	stopHealthCheck chan struct{}
	closeOnce       sync.Once
	closed          atomic.Bool
}

// NewClient creates a client for the given servers.
// Addresses without a port use DefaultPort. No connection is opened until
// the first command.
func NewClient(servers []string, config Config) (*Client, error) {
	addrs, err := parseServers(servers)
	if err != nil {
		return nil, err
	}

	config = config.withDefaults()
	stats := newClientStatsCollector()

	opts := linkOptions{
		dial:             config.dial,
		connectTimeout:   config.ConnectTimeout,
		ioTimeout:        config.IOTimeout,
		deadRetry:        config.DeadRetry,
		flushOnReconnect: config.FlushOnReconnect,
		maxValueLength:   config.MaxValueSize,
		logger:           config.Logger,
		onDead:           stats.recordDead,
	}

	constructor := func(ctx context.Context) (*Router, error) {
		config.Logger.Debug("asyncmc: new router", "servers", len(addrs))
		return newRouter(addrs, config.SelectServer, config.ServerRetries, opts), nil
	}

	pool, err := config.Pool(constructor, config.MinSize, config.MaxSize)
	if err != nil {
		return nil, err
	}

	client := &Client{
		servers:         addrs,
		config:          config,
		pool:            pool,
		logger:          config.Logger,
		stats:           stats,
		stopHealthCheck: make(chan struct{}),
	}

	// Start health check goroutine if enabled
	if config.HealthCheckInterval > 0 {
		go client.healthCheckLoop()
	}

	return client, nil
}

// Servers returns the normalized server addresses in configuration order.
func (c *Client) Servers() []string {
	return append([]string(nil), c.servers...)
}

// Close closes the client and every idle Router. Routers still in use are
// closed when released.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.stopHealthCheck)
		c.pool.Close()
	})
}

// ClientStats returns a snapshot of client statistics.
func (c *Client) ClientStats() ClientStats {
	return c.stats.snapshot()
}

// PoolStats returns a snapshot of pool statistics.
func (c *Client) PoolStats() PoolStats {
	return c.pool.Stats()
}

// withRouter lends a Router to fn and returns it to the pool on every path.
func (c *Client) withRouter(ctx context.Context, fn func(r *Router) error) error {
	if c.closed.Load() {
		return ErrClientClosed
	}

	res, err := c.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer res.Release()

	return fn(res.Value())
}

func (c *Client) observe(err error) error {
	if err != nil {
		c.stats.recordError()
	}
	return err
}

// healthCheckLoop periodically evicts idle Routers.
func (c *Client) healthCheckLoop() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopHealthCheck:
			return
		case <-ticker.C:
			c.checkIdleRouters()
		}
	}
}

// checkIdleRouters closes Routers idle longer than MaxIdleTime, keeping
// MinSize of them.
func (c *Client) checkIdleRouters() {
	for _, res := range c.pool.AcquireAllIdle() {
		if c.config.MaxIdleTime > 0 && res.IdleDuration() > c.config.MaxIdleTime && c.pool.Size() > c.config.MinSize {
			c.logger.Debug("asyncmc: closing idle router", "idle", res.IdleDuration())
			c.stats.recordEviction()
			res.Destroy()
			continue
		}

		res.ReleaseUnused()
	}
}
