package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// collection pipeline.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec // labels: source, mode, outcome={success,error,empty}
	FetchDuration *prometheus.HistogramVec

	FallbackActivations *prometheus.CounterVec // labels: mode
	BatchesRejected     *prometheus.CounterVec // labels: source
	RecordsWritten      *prometheus.CounterVec // labels: source, mode
	RegionOutcomes      *prometheus.CounterVec // labels: mode, result={succeeded,failed}

	RunDuration      prometheus.Histogram
	CollectorRunning prometheus.Gauge
}

// NewMetrics creates and registers all collector metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchAttempts,
		m.FetchDuration,
		m.FallbackActivations,
		m.BatchesRejected,
		m.RecordsWritten,
		m.RegionOutcomes,
		m.RunDuration,
		m.CollectorRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_collector",
			Name:      "fetch_attempts_total",
			Help:      "Source client fetch attempts by source, mode and outcome.",
		}, []string{"source", "mode", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climate_collector",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a complete source fetch, retries included.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"source", "mode"}),
		FallbackActivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_collector",
			Name:      "fallback_activations_total",
			Help:      "Times the backup source was attempted after a primary failure.",
		}, []string{"mode"}),
		BatchesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_collector",
			Name:      "batches_rejected_total",
			Help:      "Batches rejected by the consistency checker.",
		}, []string{"source"}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_collector",
			Name:      "records_written_total",
			Help:      "Observation rows appended to partition files.",
		}, []string{"source", "mode"}),
		RegionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climate_collector",
			Name:      "region_outcomes_total",
			Help:      "Per-region collection outcomes.",
		}, []string{"mode", "result"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "climate_collector",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full collection run across all regions.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
		}),
		CollectorRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climate_collector",
			Name:      "running",
			Help:      "1 while a collection run is active, 0 otherwise.",
		}),
	}
}
