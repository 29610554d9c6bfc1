package asyncmc

import (
	"bufio"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ErDmKo/asyncmc/internal/testutils"
	"github.com/ErDmKo/asyncmc/text"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(selector ServerSelector, deadRetry time.Duration, addrs ...string) *Router {
	return newRouter(addrs, selector, DefaultServerRetries, linkOptions{
		connectTimeout: time.Second,
		deadRetry:      deadRetry,
	})
}

func readVersion(r *bufio.Reader) (string, error) {
	line, err := text.ReadLine(r)
	if err != nil {
		return "", err
	}
	return text.DecodeVersionReply(line)
}

func TestRouter_SelectServerDeterministic(t *testing.T) {
	addrs := []string{"a:11211", "b:11211", "c:11211", "d:11211"}
	r1 := newTestRouter(nil, time.Minute, addrs...)
	r2 := newTestRouter(nil, time.Minute, addrs...)

	for i := range 200 {
		key := fmt.Sprintf("key:%d", i)
		first := r1.SelectServer(key).Addr()
		assert.Equal(t, first, r1.SelectServer(key).Addr(), "key %s moved between calls", key)
		assert.Equal(t, first, r2.SelectServer(key).Addr(), "key %s differs between routers", key)
		assert.Equal(t, addrs[DefaultServerSelector(key, len(addrs))], first)
	}
}

func TestRouter_DispatchOne(t *testing.T) {
	server := testutils.NewFakeServer(t)
	router := newTestRouter(nil, time.Minute, server.Addr())
	defer router.Close()

	cmd, err := text.EncodeStorage(text.CmdSet, "k", 0, 0, []byte("v"), false)
	require.NoError(t, err)

	var line string
	require.NoError(t, router.DispatchOne(testContext(t), "k", cmd, readLineInto(&line)))
	assert.Equal(t, "STORED", line)

	data, _, ok := server.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(data))
}

func TestRouter_DispatchAll(t *testing.T) {
	s1 := testutils.NewFakeServer(t)
	s2 := testutils.NewFakeServer(t)
	router := newTestRouter(nil, time.Minute, s1.Addr(), s2.Addr())
	defer router.Close()

	versions, err := DispatchAll(testContext(t), router, []byte("version\r\n"), readVersion)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		s1.Addr(): testutils.FakeVersion,
		s2.Addr(): testutils.FakeVersion,
	}, versions)
}

func TestRouter_DispatchAllNoReply(t *testing.T) {
	s1 := testutils.NewFakeServer(t)
	s2 := testutils.NewFakeServer(t)
	s1.Put("a", 0, []byte("1"))
	s2.Put("b", 0, []byte("2"))

	router := newTestRouter(nil, time.Minute, s1.Addr(), s2.Addr())
	defer router.Close()

	var read func(*bufio.Reader) (struct{}, error)
	results, err := DispatchAll(testContext(t), router, []byte("flush_all noreply\r\n"), read)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	require.Eventually(t, func() bool {
		return s1.Len() == 0 && s2.Len() == 0
	}, time.Second, 10*time.Millisecond)
}

// A dead server is left out of fan-out results and excluded from selection
// until its dead-retry interval elapses.
func TestRouter_DeadServer(t *testing.T) {
	live := testutils.NewFakeServer(t)
	deadAddr := testutils.ClosedAddr(t)

	// "pinned" hashes to the dead server, rehashed keys to the live one
	selector := func(key string, n int) int {
		if key == "pinned" {
			return 1
		}
		return 0
	}

	router := newTestRouter(selector, 200*time.Millisecond, live.Addr(), deadAddr)
	defer router.Close()

	assert.Equal(t, deadAddr, router.SelectServer("pinned").Addr())

	versions, err := DispatchAll(testContext(t), router, []byte("version\r\n"), readVersion)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{live.Addr(): testutils.FakeVersion}, versions)

	deadLink := router.Links()[1]
	assert.False(t, deadLink.Alive())
	assert.NotEmpty(t, deadLink.LastReason())
	assert.Equal(t, live.Addr(), router.SelectServer("pinned").Addr())

	require.Eventually(t, deadLink.Alive, 2*time.Second, 20*time.Millisecond)
	assert.Equal(t, deadAddr, router.SelectServer("pinned").Addr())
}

func TestRouter_DeadServerNoLiveAlternative(t *testing.T) {
	deadAddr := testutils.ClosedAddr(t)
	otherDead := testutils.ClosedAddr(t)

	router := newTestRouter(staticSelector(0), time.Minute, deadAddr, otherDead)
	defer router.Close()

	_, err := DispatchAll(testContext(t), router, []byte("version\r\n"), readVersion)
	require.Error(t, err)

	var derr *ConnectionDeadError
	require.ErrorAs(t, err, &derr)
	require.Len(t, derr.Causes, 2)
	assert.Equal(t, deadAddr, derr.Causes[0].Server)
	assert.Equal(t, otherDead, derr.Causes[1].Server)
	assert.Contains(t, err.Error(), "all servers dead")

	// Every candidate is dead: the hashed server is returned
	assert.Equal(t, deadAddr, router.SelectServer("any").Addr())
}

func TestRouter_GetMulti(t *testing.T) {
	s1 := testutils.NewFakeServer(t)
	s2 := testutils.NewFakeServer(t)

	router := newTestRouter(nil, time.Minute, s1.Addr(), s2.Addr())
	defer router.Close()

	keys := make([]string, 20)
	for i := range keys {
		keys[i] = fmt.Sprintf("multi:%d", i)
		if i%2 == 0 {
			owner := s1
			if router.SelectServer(keys[i]).Addr() == s2.Addr() {
				owner = s2
			}
			owner.Put(keys[i], 0, []byte(keys[i]))
		}
	}

	values, err := router.GetMulti(testContext(t), keys)
	require.NoError(t, err)
	assert.Len(t, values, 10)
	for i, key := range keys {
		if i%2 == 0 {
			assert.Equal(t, key, string(values[key].Data))
		} else {
			assert.NotContains(t, values, key)
		}
	}
}

func TestRouter_GetMultiPartialFailure(t *testing.T) {
	live := testutils.NewFakeServer(t)
	live.Put("a", 0, []byte("1"))
	deadAddr := testutils.ClosedAddr(t)

	selector := func(key string, n int) int {
		if key == "b" {
			return 1
		}
		return 0
	}
	router := newRouter([]string{live.Addr(), deadAddr}, selector, -1, linkOptions{deadRetry: time.Minute})
	defer router.Close()

	values, err := router.GetMulti(testContext(t), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]text.RawValue{"a": {Flags: 0, Data: []byte("1")}}, values)

	_, err = router.GetMulti(testContext(t), []string{"b"})
	assert.True(t, IsConnectionDead(err))
}

func TestRouter_Close(t *testing.T) {
	server := testutils.NewFakeServer(t)
	router := newTestRouter(nil, time.Minute, server.Addr())

	_, err := DispatchAll(context.Background(), router, []byte("version\r\n"), readVersion)
	require.NoError(t, err)
	assert.True(t, router.Links()[0].Connected())

	require.NoError(t, router.Close())
	assert.False(t, router.Links()[0].Connected())
}

// The i-th rehash of a key hashes the attempt number prefixed to the key.
func TestRouter_RehashKeyForm(t *testing.T) {
	var tried []string
	selector := func(key string, n int) int {
		tried = append(tried, key)
		return 0
	}

	router := newRouter([]string{"127.0.0.1:1", "127.0.0.1:2"}, selector, 3, linkOptions{deadRetry: time.Minute})
	defer router.Close()

	router.Links()[0].MarkDead("down")
	assert.Equal(t, router.Links()[0], router.SelectServer("k"))
	assert.Equal(t, []string{"k", "0k", "1k", "2k"}, tried)
}
