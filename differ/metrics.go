package differ

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	diffDuration prometheus.Histogram
	diffErrors   prometheus.Counter
}

// NewMetrics creates the differ's collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "router_diff_duration_seconds",
			Help:    "Time taken to diff two router state snapshots.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		diffErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_diff_errors_total",
			Help: "Number of state diffs that failed.",
		}),
	}
	reg.MustRegister(m.diffDuration, m.diffErrors)
	return m
}
