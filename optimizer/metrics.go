package optimizer

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	optimizeDuration prometheus.Histogram
	expansions       prometheus.Counter
	expansionErrors  prometheus.Counter
	cacheHits        prometheus.Counter
}

// NewMetrics creates the optimizer's collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		optimizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "router_optimize_duration_seconds",
			Help:    "Time taken to optimize the starting amount of one asset path.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		expansions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_expansions_total",
			Help: "Number of concrete market paths searched.",
		}),
		expansionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_expansion_errors_total",
			Help: "Number of market paths dropped because a market returned an error.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_expansion_cache_hits_total",
			Help: "Number of path expansions served from cache.",
		}),
	}
	reg.MustRegister(m.optimizeDuration, m.expansions, m.expansionErrors, m.cacheHits)
	return m
}
