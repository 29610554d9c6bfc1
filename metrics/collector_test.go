package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/ErDmKo/asyncmc"
	"github.com/ErDmKo/asyncmc/internal/testutils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	client asyncmc.ClientStats
	pool   asyncmc.PoolStats
}

func (s staticSource) ClientStats() asyncmc.ClientStats { return s.client }
func (s staticSource) PoolStats() asyncmc.PoolStats     { return s.pool }

func TestCollector_Static(t *testing.T) {
	source := staticSource{
		client: asyncmc.ClientStats{Gets: 10, GetHits: 7, Stores: 3, Errors: 1, DeadMarks: 2},
		pool: asyncmc.PoolStats{
			AcquireCount:      14,
			AcquireWaitTimeNs: 1_500_000_000,
			TotalRouters:      3,
			IdleRouters:       2,
			ActiveRouters:     1,
		},
	}

	c := NewCollector("asyncmc", source)

	expected := `
# HELP asyncmc_gets_total Keys requested by get and multi-get
# TYPE asyncmc_gets_total counter
asyncmc_gets_total 10
# HELP asyncmc_get_hits_total Keys found by get and multi-get
# TYPE asyncmc_get_hits_total counter
asyncmc_get_hits_total 7
# HELP asyncmc_server_dead_total Times a server was marked dead
# TYPE asyncmc_server_dead_total counter
asyncmc_server_dead_total 2
# HELP asyncmc_pool_acquire_wait_seconds_total Time spent waiting for a router
# TYPE asyncmc_pool_acquire_wait_seconds_total counter
asyncmc_pool_acquire_wait_seconds_total 1.5
# HELP asyncmc_pool_routers Routers in the pool
# TYPE asyncmc_pool_routers gauge
asyncmc_pool_routers{state="active"} 1
asyncmc_pool_routers{state="idle"} 2
asyncmc_pool_routers{state="total"} 3
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"asyncmc_gets_total",
		"asyncmc_get_hits_total",
		"asyncmc_server_dead_total",
		"asyncmc_pool_acquire_wait_seconds_total",
		"asyncmc_pool_routers",
	)
	require.NoError(t, err)

	assert.Equal(t, 17, testutil.CollectAndCount(c))
}

func TestCollector_Lint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector("asyncmc", staticSource{}))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestCollector_Client(t *testing.T) {
	server := testutils.NewFakeServer(t)
	client, err := asyncmc.NewClient([]string{server.Addr()}, asyncmc.Config{})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	ctx := context.Background()
	_, err = client.Set(ctx, asyncmc.Item{Key: "k", Value: "v"})
	require.NoError(t, err)
	_, err = client.Get(ctx, "k")
	require.NoError(t, err)
	_, err = client.Get(ctx, "missing")
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector("cache", client))

	count, err := testutil.GatherAndCount(registry, "cache_gets_total", "cache_get_hits_total", "cache_stores_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	err = testutil.GatherAndCompare(registry, strings.NewReader(`
# HELP cache_get_hits_total Keys found by get and multi-get
# TYPE cache_get_hits_total counter
cache_get_hits_total 1
# HELP cache_stores_total Storage commands completed
# TYPE cache_stores_total counter
cache_stores_total 1
`), "cache_get_hits_total", "cache_stores_total")
	require.NoError(t, err)
}
