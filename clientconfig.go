package gocbcorelite

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/avsej/gocbcore-lite/codec"
	"github.com/avsej/gocbcore-lite/dispatcher"
	"github.com/avsej/gocbcore-lite/pkg/config"
	"github.com/avsej/gocbcore-lite/pool"
	"github.com/avsej/gocbcore-lite/sasl"
)

// NewClientConfig translates a loaded, validated pkg/config.Config into a
// ClientConfig, so a caller never has to hand-assemble one field by field
// from a config file (spec.md §6). Connect is still the only thing that
// actually dials anything; this is pure translation.
func NewClientConfig(cfg *config.Config) (ClientConfig, error) {
	tlsCfg, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("gocbcorelite: tls config: %w", err)
	}

	out := ClientConfig{
		ConnectionString: cfg.Connection.ConnectionString,
		Bucket:           cfg.Connection.Bucket,
		Username:         cfg.Connection.Username,
		Password:         cfg.Connection.Password,
		TLSConfig:        tlsCfg,
		Compression: codec.CompressionConfig{
			Enabled:  cfg.Compression.Enabled,
			MinSize:  int(cfg.Compression.MinSize),
			MinRatio: cfg.Compression.MinRatio,
		},
		Pool: pool.Config{
			MinEndpoints: cfg.Pool.MinEndpoints,
			MaxEndpoints: cfg.Pool.MaxEndpoints,
			IdleTimeout:  cfg.Pool.IdleTimeout,
			ReapInterval: cfg.Pool.ReapInterval,
			MaxInFlight:  cfg.Pool.MaxInFlight,
		},
		Backoff: dispatcher.BackoffPolicy{
			Base:   cfg.Backoff.Base,
			Max:    cfg.Backoff.Max,
			Jitter: cfg.Backoff.Jitter,
		},
		ConnectTimeout: cfg.Bootstrap.Deadline,
	}

	if cfg.Connection.JWT != "" {
		out.Credentials = sasl.NewJWTCredentialsProvider(cfg.Connection.JWT)
	}

	return out, nil
}

// buildTLSConfig turns config.TLSConfig into a *tls.Config, or nil when TLS
// is disabled. A caFile is loaded as the sole trust root, matching the
// single-cluster-CA deployment this client targets rather than appending to
// the system pool.
func buildTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CAFile == "" {
		return tlsCfg, nil
	}
	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
	}
	tlsCfg.RootCAs = pool
	return tlsCfg, nil
}
