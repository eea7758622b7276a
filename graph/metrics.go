package graph

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	markets     prometheus.Gauge
	generations prometheus.Counter
}

// NewMetrics creates the graph's collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		markets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "router_graph_markets",
			Help: "Number of markets in the published graph snapshot.",
		}),
		generations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "router_graph_snapshots_total",
			Help: "Number of graph snapshots published.",
		}),
	}
	reg.MustRegister(m.markets, m.generations)
	return m
}
