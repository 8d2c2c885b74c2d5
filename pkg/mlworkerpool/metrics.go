package mlworkerpool

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes cache hit/miss/eviction/launch counters for scrape. It is
// a collaborator type only: no HTTP handler is wired here (the admin API is
// out of scope), so callers register metrics.Registry() with whatever
// exporter their deployment uses.
type Metrics struct {
	registry  *prometheus.Registry
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	launches  prometheus.Counter
}

// NewMetrics builds a Metrics with its own registry, so multiple Cache
// instances (as in tests) never collide on global registration.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "hits_total",
			Help:      "Cached worker reuse hits.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "misses_total",
			Help:      "Cache lookups that found no reusable worker.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "evictions_total",
			Help:      "Cached workers evicted under admission pressure.",
		}),
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker_pool",
			Name:      "launches_total",
			Help:      "Fresh worker processes launched.",
		}),
	}
	reg.MustRegister(m.hits, m.misses, m.evictions, m.launches)
	return m
}

// Registry returns the Prometheus registry backing this Metrics instance.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) recordHit()      { m.hits.Inc() }
func (m *Metrics) recordMiss()     { m.misses.Inc() }
func (m *Metrics) recordEviction() { m.evictions.Inc() }
func (m *Metrics) recordLaunch()   { m.launches.Inc() }
