package asyncmc

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ErDmKo/asyncmc/text"
	"github.com/sony/gobreaker/v2"
)

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// linkOptions is shared by every link of every router of a client.
type linkOptions struct {
	dial             dialFunc
	connectTimeout   time.Duration
	ioTimeout        time.Duration
	deadRetry        time.Duration
	flushOnReconnect bool
	maxValueLength   int
	logger           *slog.Logger
	onDead           func(addr string)
}

// ServerLink owns one TCP connection to one memcached server.
//
// The socket is opened lazily on first use and reopened after a failure once
// the dead-retry interval has elapsed. Exchanges on a link are strictly
// sequential: a request is written and its reply fully read before the next
// request starts.
type ServerLink struct {
	addr    string
	opts    linkOptions
	breaker *deadRetryBreaker // nil when quarantine is disabled

	mu           sync.Mutex
	conn         net.Conn
	reader       *bufio.Reader
	writer       *bufio.Writer
	lastReason   string
	deadUntil    time.Time
	wasDead      bool
	flushPending bool
	closed       bool
}

func newServerLink(addr string, opts linkOptions) *ServerLink {
	if opts.logger == nil {
		opts.logger = slog.New(slog.DiscardHandler)
	}
	if opts.dial == nil {
		opts.dial = (&net.Dialer{}).DialContext
	}

	return &ServerLink{
		addr:    addr,
		opts:    opts,
		breaker: newDeadRetryBreaker(addr, opts.deadRetry, opts.logger),
	}
}

// Addr returns the server address as host:port.
func (l *ServerLink) Addr() string {
	return l.addr
}

// Alive reports whether the link may be used. A link is not alive while it
// is quarantined after a connection failure.
func (l *ServerLink) Alive() bool {
	return l.breaker == nil || l.breaker.State() != gobreaker.StateOpen
}

// LastReason returns the reason recorded by the last MarkDead, if any.
func (l *ServerLink) LastReason() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastReason
}

// DeadUntil returns the end of the current quarantine.
// The zero time means the link was never marked dead.
func (l *ServerLink) DeadUntil() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.deadUntil
}

// Connected reports whether a socket is currently open.
func (l *ServerLink) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// MarkDead closes the socket and quarantines the server for the dead-retry
// interval.
func (l *ServerLink) MarkDead(reason string) {
	l.mu.Lock()
	l.markDead(reason)
	l.mu.Unlock()

	if l.breaker != nil {
		if done, err := l.breaker.Allow(); err == nil {
			done(false)
		}
	}
}

// Close releases the socket. It is idempotent; a closed link refuses further
// exchanges.
func (l *ServerLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	return l.closeConn()
}

// Exchange writes cmd and hands the reply stream to read.
//
// A nil read means no reply is expected (noreply commands). The reader must
// consume the whole reply; it is only valid for the duration of the call.
//
// Transport failures close the socket, quarantine the server and come back as
// *ConnectionDeadError. A ProtocolError that left unread bytes on the socket
// closes the socket without quarantine. A cancelled context closes the socket
// and returns the context error.
func (l *ServerLink) Exchange(ctx context.Context, cmd []byte, read func(r *bufio.Reader) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return &ConnectionDeadError{Server: l.addr, Reason: "link closed"}
	}

	reached := false
	if l.breaker != nil {
		probing := l.breaker.State() == gobreaker.StateHalfOpen
		done, berr := l.breaker.Allow()
		if berr != nil {
			return l.quarantinedError(berr)
		}
		defer func() {
			switch {
			case IsConnectionDead(err):
				done(false)
			case probing && !reached:
				// The reconnect was cancelled before reaching the server.
				l.deadUntil = time.Now().Add(l.opts.deadRetry)
				done(false)
			default:
				done(true)
			}
		}()
	}

	if err := l.ensureConnected(ctx); err != nil {
		return err
	}
	reached = true

	stop := l.watchContext(ctx)
	defer stop()

	if l.flushPending {
		if err := l.flushStale(ctx); err != nil {
			return err
		}
	}

	if l.opts.logger.Enabled(ctx, slog.LevelDebug) {
		l.opts.logger.Debug("asyncmc: send", "addr", l.addr, "cmd", commandVerb(cmd))
	}

	if _, err := l.writer.Write(cmd); err != nil {
		return l.fail(ctx, "write", err)
	}
	if err := l.writer.Flush(); err != nil {
		return l.fail(ctx, "write", err)
	}

	if read == nil {
		return nil
	}
	if err := read(l.reader); err != nil {
		return l.fail(ctx, "read", err)
	}
	return nil
}

// ensureConnected dials the server if no socket is open.
// The connect timeout is one budget shared by every address the host resolves to.
func (l *ServerLink) ensureConnected(ctx context.Context) error {
	if l.conn != nil {
		return nil
	}

	dialCtx := ctx
	if l.opts.connectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, l.opts.connectTimeout)
		defer cancel()
	}

	conn, err := l.opts.dial(dialCtx, "tcp", l.addr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return l.markDead("connect: " + err.Error())
	}

	l.conn = conn
	l.reader = bufio.NewReader(conn)
	l.writer = bufio.NewWriter(conn)

	if l.wasDead {
		l.wasDead = false
		l.opts.logger.Info("asyncmc: server reconnected", "addr", l.addr)
	} else {
		l.opts.logger.Debug("asyncmc: connected", "addr", l.addr)
	}
	return nil
}

// watchContext applies the I/O deadline and unblocks pending I/O when ctx is
// cancelled. Once the cancel hook has fired the socket deadline is in the
// past, so stop drops the socket. Must be called with the lock held, and so
// must stop.
func (l *ServerLink) watchContext(ctx context.Context) (stop func()) {
	deadline, ok := ctx.Deadline()
	if l.opts.ioTimeout > 0 {
		if d := time.Now().Add(l.opts.ioTimeout); !ok || d.Before(deadline) {
			deadline, ok = d, true
		}
	}
	if !ok {
		deadline = time.Time{}
	}
	_ = l.conn.SetDeadline(deadline)

	conn := l.conn
	stopFn := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(aLongTimeAgo)
	})
	return func() {
		if !stopFn() && l.conn == conn {
			_ = l.closeConn()
		}
	}
}

// flushStale invalidates the server content after a reconnect, since writes
// made by other clients while this one considered it dead may be missing.
func (l *ServerLink) flushStale(ctx context.Context) error {
	if _, err := l.writer.Write(text.EncodeSimple(text.CmdFlushAll, false)); err != nil {
		return l.fail(ctx, "flush", err)
	}
	if err := l.writer.Flush(); err != nil {
		return l.fail(ctx, "flush", err)
	}

	line, err := text.ReadLine(l.reader)
	if err == nil {
		err = text.DecodeOKReply(line)
	}
	if err != nil {
		return l.fail(ctx, "flush", err)
	}

	l.flushPending = false
	l.opts.logger.Info("asyncmc: flushed server after reconnect", "addr", l.addr)
	return nil
}

// fail classifies an error raised mid-exchange. Must be called with the lock held.
func (l *ServerLink) fail(ctx context.Context, op string, err error) error {
	var perr *text.ProtocolError
	if errors.As(err, &perr) {
		if perr.Desync {
			_ = l.closeConn()
		}
		return err
	}
	if text.IsValidationError(err) {
		return err
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		_ = l.closeConn()
		return ctxErr
	}

	return l.markDead(op + ": " + err.Error())
}

// markDead must be called with the lock held.
func (l *ServerLink) markDead(reason string) *ConnectionDeadError {
	_ = l.closeConn()

	l.lastReason = reason
	l.wasDead = true
	if l.opts.deadRetry > 0 {
		l.deadUntil = time.Now().Add(l.opts.deadRetry)
	}
	if l.opts.flushOnReconnect {
		l.flushPending = true
	}

	l.opts.logger.Warn("asyncmc: server marked dead", "addr", l.addr, "reason", reason, "retry_in", l.opts.deadRetry)
	if l.opts.onDead != nil {
		l.opts.onDead(l.addr)
	}

	return &ConnectionDeadError{Server: l.addr, Reason: reason}
}

func (l *ServerLink) quarantinedError(err error) *ConnectionDeadError {
	reason := l.lastReason
	if reason == "" {
		reason = err.Error()
	}
	if !l.deadUntil.IsZero() {
		reason += " (retry at " + l.deadUntil.Format(time.RFC3339) + ")"
	}
	return &ConnectionDeadError{Server: l.addr, Reason: reason}
}

func (l *ServerLink) closeConn() error {
	if l.conn == nil {
		return nil
	}

	err := l.conn.Close()
	l.conn = nil
	l.reader = nil
	l.writer = nil
	return err
}

// readValues reads a get reply, capping each data block at the configured
// value size.
func (l *ServerLink) readValues(r *bufio.Reader, keys []string) (map[string]text.RawValue, error) {
	return text.ReadValuesLimit(r, keys, l.opts.maxValueLength)
}

func commandVerb(cmd []byte) string {
	if i := bytes.IndexAny(cmd, " \r"); i >= 0 {
		return string(cmd[:i])
	}
	return string(cmd)
}
