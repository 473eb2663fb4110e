// Package metrics exposes optional Prometheus instrumentation for the pool,
// dispatcher, and channel packages, following the same "nil means zero
// overhead" idiom the teacher's pkg/metrics uses for cache/S3 metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry creates the Prometheus registry backing this module's
// metrics. Safe to call more than once; later calls are no-ops.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
		enabled = true
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// Registry returns the active registry, initializing one if necessary.
func Registry() *prometheus.Registry {
	mu.Lock()
	r := registry
	mu.Unlock()
	if r != nil {
		return r
	}
	return InitRegistry()
}
