// Package metrics exposes Prometheus metrics for the bot.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	registry *prometheus.Registry

	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	SnapshotPools prometheus.Gauge
	SnapshotBlock prometheus.Gauge

	// Pipeline metrics
	OpportunitiesFound      *prometheus.CounterVec
	OpportunitiesSkipped    *prometheus.CounterVec
	OpportunitiesProfitable *prometheus.CounterVec

	// Execution metrics
	Executions  *prometheus.CounterVec
	GasUsed     prometheus.Histogram
	LastSuccess prometheus.Gauge
}

// New creates a Metrics instance registered on its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "flash_arb"
	}
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of cycles by outcome",
		}, []string{"status"}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Cycle wall time",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		SnapshotPools: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "snapshot_pools",
			Help:      "Pools loaded in the latest snapshot",
		}),
		SnapshotBlock: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "snapshot_block",
			Help:      "Block number of the latest snapshot",
		}),

		OpportunitiesFound: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "opportunities_found_total",
			Help:      "Candidate opportunities by kind",
		}, []string{"kind"}),
		OpportunitiesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "opportunities_skipped_total",
			Help:      "Skipped opportunities by kind and reason",
		}, []string{"kind", "reason"}),
		OpportunitiesProfitable: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "opportunities_profitable_total",
			Help:      "Opportunities that cleared the profit threshold",
		}, []string{"kind"}),

		Executions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "attempts_total",
			Help:      "Execution attempts by final state",
		}, []string{"state"}),
		GasUsed: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "gas_used",
			Help:      "Gas used by mined transactions",
			Buckets:   prometheus.ExponentialBuckets(100_000, 1.5, 8),
		}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "execution",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful execution",
		}),
	}
}

// Registry returns the registry the metrics live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCycle records a finished cycle
func (m *Metrics) ObserveCycle(took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CyclesTotal.WithLabelValues(status).Inc()
	m.CycleDuration.Observe(took.Seconds())
}
