// Package prometheus implements metrics.KVMetrics with Prometheus
// collectors, registered against metrics.Registry() the way the teacher's
// pkg/metrics/prometheus/badger.go registers its gauges and counters.
package prometheus

import (
	"time"

	"github.com/avsej/gocbcore-lite/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterKVMetricsConstructor(newKVMetrics)
}

type kvMetrics struct {
	poolSize          *prometheus.GaugeVec
	circuitOpen       *prometheus.GaugeVec
	inFlight          *prometheus.GaugeVec
	dispatchLatency   *prometheus.HistogramVec
	dispatchFailures  *prometheus.CounterVec
	retries           *prometheus.CounterVec
	bootstrapStage    *prometheus.HistogramVec
	bootstrapFailures *prometheus.CounterVec
}

func newKVMetrics() metrics.KVMetrics {
	reg := metrics.Registry()

	return &kvMetrics{
		poolSize: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gocbcore_pool_size",
				Help: "Current endpoint count per (node, service) pool",
			},
			[]string{"node", "service"},
		),
		circuitOpen: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gocbcore_pool_circuit_open",
				Help: "1 if a pool's circuit breaker is open for a node, else 0",
			},
			[]string{"node", "service"},
		),
		inFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gocbcore_endpoint_in_flight",
				Help: "In-flight opaque-keyed requests per endpoint",
			},
			[]string{"node", "service"},
		),
		dispatchLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gocbcore_dispatch_duration_seconds",
				Help:    "Per-attempt dispatcher round-trip latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service", "opcode"},
		),
		dispatchFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocbcore_dispatch_failures_total",
				Help: "Dispatch attempts that ended in a non-success status or transport error",
			},
			[]string{"service", "opcode"},
		),
		retries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocbcore_dispatch_retries_total",
				Help: "Dispatcher retries, tagged by cause",
			},
			[]string{"service", "reason"},
		),
		bootstrapStage: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gocbcore_bootstrap_stage_duration_seconds",
				Help:    "Channel bootstrap pipeline per-stage latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		bootstrapFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gocbcore_bootstrap_stage_failures_total",
				Help: "Bootstrap stage failures, tagged by stage",
			},
			[]string{"stage"},
		),
	}
}

func (m *kvMetrics) RecordPoolSize(node, service string, size int) {
	m.poolSize.WithLabelValues(node, service).Set(float64(size))
}

func (m *kvMetrics) RecordCircuitState(node, service string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	m.circuitOpen.WithLabelValues(node, service).Set(v)
}

func (m *kvMetrics) RecordInFlight(node, service string, n int) {
	m.inFlight.WithLabelValues(node, service).Set(float64(n))
}

func (m *kvMetrics) ObserveDispatch(service, opcode string, attempt int, duration time.Duration, failed bool) {
	m.dispatchLatency.WithLabelValues(service, opcode).Observe(duration.Seconds())
	if failed {
		m.dispatchFailures.WithLabelValues(service, opcode).Inc()
	}
}

func (m *kvMetrics) RecordRetry(service, reason string) {
	m.retries.WithLabelValues(service, reason).Inc()
}

func (m *kvMetrics) ObserveBootstrapStage(stage string, duration time.Duration, failed bool) {
	m.bootstrapStage.WithLabelValues(stage).Observe(duration.Seconds())
	if failed {
		m.bootstrapFailures.WithLabelValues(stage).Inc()
	}
}
