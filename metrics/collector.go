// Package metrics exports asyncmc client statistics to Prometheus.
package metrics

import (
	"github.com/ErDmKo/asyncmc"
	"github.com/prometheus/client_golang/prometheus"
)

// StatsSource is satisfied by *asyncmc.Client.
type StatsSource interface {
	ClientStats() asyncmc.ClientStats
	PoolStats() asyncmc.PoolStats
}

// Collector reads client and pool statistics on every scrape.
type Collector struct {
	source StatsSource

	gets      *prometheus.Desc
	getHits   *prometheus.Desc
	stores    *prometheus.Desc
	deletes   *prometheus.Desc
	flushes   *prometheus.Desc
	errors    *prometheus.Desc
	deadMarks *prometheus.Desc
	evictions *prometheus.Desc

	acquires     *prometheus.Desc
	acquireWaits *prometheus.Desc
	waitSeconds  *prometheus.Desc
	acquireErrs  *prometheus.Desc
	created      *prometheus.Desc
	destroyed    *prometheus.Desc
	routers      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for source. Metric names are prefixed
// with namespace, e.g. asyncmc_gets_total.
func NewCollector(namespace string, source StatsSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}

	return &Collector{
		source: source,

		gets:      desc("gets_total", "Keys requested by get and multi-get"),
		getHits:   desc("get_hits_total", "Keys found by get and multi-get"),
		stores:    desc("stores_total", "Storage commands completed"),
		deletes:   desc("deletes_total", "Delete commands completed"),
		flushes:   desc("flushes_total", "flush_all commands completed"),
		errors:    desc("errors_total", "Operations that returned an error"),
		deadMarks: desc("server_dead_total", "Times a server was marked dead"),
		evictions: desc("router_evictions_total", "Idle routers closed by health checks"),

		acquires:     desc("pool_acquires_total", "Router acquire attempts"),
		acquireWaits: desc("pool_acquire_waits_total", "Router acquires that had to wait"),
		waitSeconds:  desc("pool_acquire_wait_seconds_total", "Time spent waiting for a router"),
		acquireErrs:  desc("pool_acquire_errors_total", "Failed router acquires"),
		created:      desc("pool_routers_created_total", "Routers created"),
		destroyed:    desc("pool_routers_destroyed_total", "Routers destroyed"),
		routers:      desc("pool_routers", "Routers in the pool", "state"), // total, idle, active
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.gets, c.getHits, c.stores, c.deletes, c.flushes, c.errors, c.deadMarks, c.evictions,
		c.acquires, c.acquireWaits, c.waitSeconds, c.acquireErrs, c.created, c.destroyed, c.routers,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	cs := c.source.ClientStats()
	ps := c.source.PoolStats()

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	counter(c.gets, cs.Gets)
	counter(c.getHits, cs.GetHits)
	counter(c.stores, cs.Stores)
	counter(c.deletes, cs.Deletes)
	counter(c.flushes, cs.Flushes)
	counter(c.errors, cs.Errors)
	counter(c.deadMarks, cs.DeadMarks)
	counter(c.evictions, cs.Evictions)

	counter(c.acquires, ps.AcquireCount)
	counter(c.acquireWaits, ps.AcquireWaitCount)
	ch <- prometheus.MustNewConstMetric(c.waitSeconds, prometheus.CounterValue, float64(ps.AcquireWaitTimeNs)/1e9)
	counter(c.acquireErrs, ps.AcquireErrors)
	counter(c.created, ps.CreatedRouters)
	counter(c.destroyed, ps.DestroyedRouters)

	ch <- prometheus.MustNewConstMetric(c.routers, prometheus.GaugeValue, float64(ps.TotalRouters), "total")
	ch <- prometheus.MustNewConstMetric(c.routers, prometheus.GaugeValue, float64(ps.IdleRouters), "idle")
	ch <- prometheus.MustNewConstMetric(c.routers, prometheus.GaugeValue, float64(ps.ActiveRouters), "active")
}
