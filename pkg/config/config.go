// Package config loads connection configuration for the core I/O runtime:
// hosts and credentials, pool sizing, compression policy, TLS, and the
// bootstrap deadline budget. It mirrors the teacher's precedence chain
// (flags > env > file > defaults) and validate struct tags, scoped down
// to what a KV client needs instead of a whole server's configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/avsej/gocbcore-lite/internal/bytesize"
)

// Config is the full set of static parameters a client needs to dial a
// cluster, bootstrap its channels, and keep the pools it opens healthy.
//
// Precedence, highest to lowest:
//  1. CLI flags (bound by the caller before Load runs)
//  2. Environment variables (GOCBCORE_*)
//  3. Configuration file (YAML)
//  4. Default values
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry" yaml:"telemetry"`
	Metrics     MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	Connection  ConnectionConfig  `mapstructure:"connection" yaml:"connection"`
	Pool        PoolConfig        `mapstructure:"pool" yaml:"pool"`
	Backoff     BackoffConfig     `mapstructure:"backoff" yaml:"backoff"`
	Compression CompressionConfig `mapstructure:"compression" yaml:"compression"`
	TLS         TLSConfig         `mapstructure:"tls" yaml:"tls"`
	Bootstrap   BootstrapConfig   `mapstructure:"bootstrap" yaml:"bootstrap"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	Enabled    bool            `mapstructure:"enabled" yaml:"enabled"`
	Endpoint   string          `mapstructure:"endpoint" validate:"required_if=Enabled true" yaml:"endpoint"`
	Insecure   bool            `mapstructure:"insecure" yaml:"insecure"`
	SampleRate float64         `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`
	Profiling  ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling, consumed by
// cmd/coreping rather than the library itself (see DESIGN.md).
type ProfilingConfig struct {
	Enabled      bool     `mapstructure:"enabled" yaml:"enabled"`
	Endpoint     string   `mapstructure:"endpoint" yaml:"endpoint"`
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// MetricsConfig toggles the metrics package's Prometheus registry.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ConnectionConfig names the cluster and identifies the caller to it.
type ConnectionConfig struct {
	// ConnectionString is parsed by the connstr package (spec.md §6); kept
	// as the raw string here so connstr stays a dependency-free grammar.
	ConnectionString string `mapstructure:"connection_string" validate:"required" yaml:"connection_string"`
	Bucket           string `mapstructure:"bucket" yaml:"bucket"`
	Username         string `mapstructure:"username" yaml:"username"`
	Password         string `mapstructure:"password" yaml:"password,omitempty"`
	// JWT, when set, routes authentication through a JWTCredentialsProvider
	// instead of the static Username/Password pair (spec.md §6).
	JWT         string `mapstructure:"jwt" yaml:"jwt,omitempty"`
	IOWorkers   int    `mapstructure:"io_workers" validate:"omitempty,min=1" yaml:"io_workers"`
}

// PoolConfig bounds every Service Pool the dispatcher opens (spec.md §4.5).
type PoolConfig struct {
	MinEndpoints int           `mapstructure:"min_endpoints" validate:"omitempty,min=1" yaml:"min_endpoints"`
	MaxEndpoints int           `mapstructure:"max_endpoints" validate:"omitempty,gtefield=MinEndpoints" yaml:"max_endpoints"`
	// MaxInFlight bounds opaque-keyed concurrent requests per KV endpoint
	// (spec.md §4.4, channel.NewEndpointWithLimit).
	MaxInFlight  int           `mapstructure:"max_in_flight" validate:"omitempty,min=1" yaml:"max_in_flight"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ReapInterval time.Duration `mapstructure:"reap_interval" yaml:"reap_interval"`
}

// BackoffConfig matches dispatcher.BackoffPolicy's fields (spec.md §4.4).
type BackoffConfig struct {
	Base   time.Duration `mapstructure:"base" yaml:"base"`
	Max    time.Duration `mapstructure:"max" yaml:"max"`
	Jitter float64       `mapstructure:"jitter" validate:"omitempty,gte=0,lte=1" yaml:"jitter"`
}

// CompressionConfig mirrors codec.CompressionConfig (spec.md §4.1).
type CompressionConfig struct {
	Enabled  bool             `mapstructure:"enabled" yaml:"enabled"`
	MinSize  bytesize.ByteSize `mapstructure:"min_size" yaml:"min_size"`
	MinRatio float64          `mapstructure:"min_ratio" validate:"omitempty,gt=0,lte=1" yaml:"min_ratio"`
}

// TLSConfig controls whether channels dial over TLS and how strictly the
// server certificate is checked.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled" yaml:"enabled"`
	CAFile             string `mapstructure:"ca_file" yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// BootstrapConfig bounds the channel bootstrap pipeline (spec.md §4.2).
// Deadline is the whole-pipeline budget. HelloShare, AuthShare and
// SelectBucketShare are loaded, defaulted and validated, but nothing reads
// them: bootstrap stages do not get separate slices of Deadline.
type BootstrapConfig struct {
	Deadline        time.Duration `mapstructure:"deadline" validate:"omitempty,gt=0" yaml:"deadline"`
	HelloShare      float64       `mapstructure:"hello_share" validate:"omitempty,gt=0,lte=1" yaml:"hello_share"`
	AuthShare       float64       `mapstructure:"auth_share" validate:"omitempty,gt=0,lte=1" yaml:"auth_share"`
	SelectBucketShare float64     `mapstructure:"select_bucket_share" validate:"omitempty,gt=0,lte=1" yaml:"select_bucket_share"`
}

// Load loads configuration from file, environment, and defaults, scoped to
// the connection-string-parsing contract of connstr: this package never
// parses hosts itself, it only carries the raw string through to it.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("config: unmarshal failed: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path in YAML, respecting the yaml struct tags.
func SaveConfig(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: create directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: write failed: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("GOCBCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook lets config files use human-readable sizes like "1KB"
// for fields of type bytesize.ByteSize, matching internal/bytesize's parser.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gocbcore-lite")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "gocbcore-lite")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

var structValidator = validator.New()

// Validate runs go-playground/validator's struct tags against cfg; it
// applies no checks beyond those tags.
func Validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}
	if cfg.Connection.Username == "" && cfg.Connection.JWT == "" {
		// Anonymous bind is legal (spec.md §6 default credentials provider);
		// nothing to validate here beyond the struct tags above.
		return nil
	}
	return nil
}
