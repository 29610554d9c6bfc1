package asyncmc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ErDmKo/asyncmc/internal/testutils"
	"github.com/stretchr/testify/require"
)

func createListener(t testing.TB, handler func(conn net.Conn)) string {
	// Start a simple test server
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start test server: %v", err)
	}

	t.Cleanup(func() {
		listener.Close()
	})

	// Accept connections in background
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			go func(c net.Conn) {
				defer c.Close()

				if handler != nil {
					handler(c)
				}
			}(conn)
		}
	}()

	return listener.Addr().String()
}

// newTestClient creates a client over the given servers, closed with the test.
func newTestClient(t testing.TB, config Config, servers ...string) *Client {
	t.Helper()

	client, err := NewClient(servers, config)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// mockDialer serves connection mocks in order, one per dial.
func mockDialer(conns ...*testutils.ConnectionMock) (dialFunc, *int) {
	dials := 0
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if dials >= len(conns) {
			dials++
			return nil, &net.OpError{Op: "dial", Net: network, Err: errConnRefused}
		}
		conn := conns[dials]
		dials++
		return conn, nil
	}, &dials
}

var errConnRefused = &net.AddrError{Err: "connection refused", Addr: "mock"}

func testContext(t testing.TB) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
