package config

import (
	"strings"
	"time"

	"github.com/avsej/gocbcore-lite/internal/bytesize"
)

// ApplyDefaults fills in zero-valued fields with sensible defaults, the
// same "zero means unset" strategy the teacher's pkg/config/defaults.go
// uses. Explicit values are always preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyMetricsDefaults(&cfg.Metrics)
	applyConnectionDefaults(&cfg.Connection)
	applyPoolDefaults(&cfg.Pool)
	applyBackoffDefaults(&cfg.Backoff)
	applyCompressionDefaults(&cfg.Compression)
	applyBootstrapDefaults(&cfg.Bootstrap)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
	if len(cfg.Profiling.ProfileTypes) == 0 {
		cfg.Profiling.ProfileTypes = []string{"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space"}
	}
	if cfg.Profiling.Endpoint == "" {
		cfg.Profiling.Endpoint = "http://localhost:4040"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = 9090
	}
}

func applyConnectionDefaults(cfg *ConnectionConfig) {
	if cfg.IOWorkers == 0 {
		cfg.IOWorkers = 4
	}
}

func applyPoolDefaults(cfg *PoolConfig) {
	if cfg.MinEndpoints == 0 {
		cfg.MinEndpoints = 1
	}
	if cfg.MaxEndpoints == 0 {
		cfg.MaxEndpoints = 4
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = 16
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 2 * time.Minute
	}
	if cfg.ReapInterval == 0 {
		cfg.ReapInterval = 30 * time.Second
	}
}

func applyBackoffDefaults(cfg *BackoffConfig) {
	if cfg.Base == 0 {
		cfg.Base = 32 * time.Millisecond
	}
	if cfg.Max == 0 {
		cfg.Max = 4 * time.Second
	}
	if cfg.Jitter == 0 {
		cfg.Jitter = 0.1
	}
}

func applyCompressionDefaults(cfg *CompressionConfig) {
	if cfg.MinSize == 0 {
		cfg.MinSize = bytesize.ByteSize(32)
	}
	if cfg.MinRatio == 0 {
		cfg.MinRatio = 0.83
	}
}

func applyBootstrapDefaults(cfg *BootstrapConfig) {
	if cfg.Deadline == 0 {
		cfg.Deadline = 10 * time.Second
	}
	if cfg.HelloShare == 0 {
		cfg.HelloShare = 0.2
	}
	if cfg.AuthShare == 0 {
		cfg.AuthShare = 0.5
	}
	if cfg.SelectBucketShare == 0 {
		cfg.SelectBucketShare = 0.2
	}
}
