package gocbcorelite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avsej/gocbcore-lite/pkg/config"
)

func TestNewClientConfigTranslatesFields(t *testing.T) {
	cfg := &config.Config{}
	cfg.Connection.ConnectionString = "couchbase://10.0.0.1,10.0.0.2/default"
	cfg.Connection.Bucket = "default"
	cfg.Connection.Username = "admin"
	cfg.Connection.Password = "password"
	cfg.Pool.MinEndpoints = 1
	cfg.Pool.MaxEndpoints = 4
	cfg.Backoff.Base = 10
	cfg.Backoff.Max = 1000
	cfg.Compression.Enabled = true
	cfg.Compression.MinRatio = 0.85

	out, err := NewClientConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Connection.ConnectionString, out.ConnectionString)
	assert.Equal(t, "default", out.Bucket)
	assert.Equal(t, "admin", out.Username)
	assert.Nil(t, out.TLSConfig)
	assert.Equal(t, 1, out.Pool.MinEndpoints)
	assert.Equal(t, 4, out.Pool.MaxEndpoints)
	assert.True(t, out.Compression.Enabled)
	assert.Nil(t, out.Credentials)
}

func TestNewClientConfigWiresJWTCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.Connection.ConnectionString = "couchbase://10.0.0.1/default"
	cfg.Connection.JWT = "header.payload.signature"

	out, err := NewClientConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, out.Credentials)
}

func TestNewClientConfigFailsOnMissingCAFile(t *testing.T) {
	cfg := &config.Config{}
	cfg.Connection.ConnectionString = "couchbase://10.0.0.1/default"
	cfg.TLS.Enabled = true
	cfg.TLS.CAFile = "/nonexistent/ca.pem"

	_, err := NewClientConfig(cfg)
	require.Error(t, err)
}

func TestNewClientConfigTLSEnabledNoCAFileUsesSystemPool(t *testing.T) {
	cfg := &config.Config{}
	cfg.Connection.ConnectionString = "couchbase://10.0.0.1/default"
	cfg.TLS.Enabled = true

	out, err := NewClientConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, out.TLSConfig)
	assert.Nil(t, out.TLSConfig.RootCAs)
}
