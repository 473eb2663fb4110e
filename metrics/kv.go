package metrics

import "time"

// KVMetrics is the instrumentation surface consumed by pool.Pool,
// dispatcher.Dispatcher, and channel.Bootstrap. A nil KVMetrics is always
// safe to call through the package-level Record*/Observe* helpers below, so
// callers that don't care about metrics can leave the field unset.
type KVMetrics interface {
	// RecordPoolSize reports the current endpoint count for one (node,
	// service) pool after a grow or reap.
	RecordPoolSize(node, service string, size int)
	// RecordCircuitState reports whether a pool's circuit breaker is
	// currently open for a node.
	RecordCircuitState(node, service string, open bool)
	// RecordInFlight reports the number of in-flight requests on one
	// endpoint after a send or a resolve.
	RecordInFlight(node, service string, n int)
	// ObserveDispatch records one Dispatcher.Dispatch attempt's outcome.
	ObserveDispatch(service, opcode string, attempt int, duration time.Duration, failed bool)
	// RecordRetry counts one dispatcher retry, tagged with its cause.
	RecordRetry(service, reason string)
	// ObserveBootstrapStage records one channel bootstrap stage's latency.
	ObserveBootstrapStage(stage string, duration time.Duration, failed bool)
}

// NewKVMetrics returns the Prometheus-backed KVMetrics, or nil if metrics
// are not enabled (InitRegistry was never called).
func NewKVMetrics() KVMetrics {
	if !IsEnabled() || newPrometheusKVMetrics == nil {
		return nil
	}
	return newPrometheusKVMetrics()
}

// newPrometheusKVMetrics is set by metrics/prometheus's init(), mirroring
// the teacher's pkg/metrics/prometheus registration-by-side-effect pattern
// to avoid an import cycle between this package and its implementation.
var newPrometheusKVMetrics func() KVMetrics

// RegisterKVMetricsConstructor is called by metrics/prometheus/kv.go.
func RegisterKVMetricsConstructor(constructor func() KVMetrics) {
	newPrometheusKVMetrics = constructor
}

func RecordPoolSize(m KVMetrics, node, service string, size int) {
	if m != nil {
		m.RecordPoolSize(node, service, size)
	}
}

func RecordCircuitState(m KVMetrics, node, service string, open bool) {
	if m != nil {
		m.RecordCircuitState(node, service, open)
	}
}

func RecordInFlight(m KVMetrics, node, service string, n int) {
	if m != nil {
		m.RecordInFlight(node, service, n)
	}
}

func ObserveDispatch(m KVMetrics, service, opcode string, attempt int, duration time.Duration, failed bool) {
	if m != nil {
		m.ObserveDispatch(service, opcode, attempt, duration, failed)
	}
}

func RecordRetry(m KVMetrics, service, reason string) {
	if m != nil {
		m.RecordRetry(service, reason)
	}
}

func ObserveBootstrapStage(m KVMetrics, stage string, duration time.Duration, failed bool) {
	if m != nil {
		m.ObserveBootstrapStage(stage, duration, failed)
	}
}
