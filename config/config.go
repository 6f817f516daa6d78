// Package config implements global configuration options.
package config

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/a8m/envsubst"
	"gopkg.in/yaml.v3"

	"github.com/nicolaslara/dao-contracts/common/logging"
	"github.com/nicolaslara/dao-contracts/proposal/api"
)

const (
	// MetricsModeNone disables metrics.
	MetricsModeNone = "none"
	// MetricsModePull exposes metrics over HTTP for scraping.
	MetricsModePull = "pull"
	// MetricsModePush pushes metrics to a Prometheus push gateway.
	MetricsModePush = "push"
)

// GlobalConfig holds the global configuration options.
var GlobalConfig Config

// Config is the top-level configuration structure.
type Config struct {
	Common  CommonConfig  `yaml:"common"`
	GRPC    GRPCConfig    `yaml:"grpc,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty"`
	Query   QueryConfig   `yaml:"query,omitempty"`
}

// CommonConfig is the common configuration structure.
type CommonConfig struct {
	// Data directory holding the proposal state.
	DataDir string `yaml:"data_dir"`
	// Logging configuration options.
	Log LogConfig `yaml:"log,omitempty"`
}

// LogConfig is the logging configuration structure.
type LogConfig struct {
	// Log file.
	File string `yaml:"file,omitempty"`
	// Log format (logfmt, json).
	Format string `yaml:"format,omitempty"`
	// Log level (debug, info, warn, error) per module. The "default" key
	// sets the level of modules without an entry.
	Level map[string]string `yaml:"level,omitempty"`
}

// GRPCConfig is the gRPC server configuration structure.
type GRPCConfig struct {
	// TCP port to serve on (0 disables the TCP listener).
	Port uint16 `yaml:"port"`
	// Path to the local unix socket (empty disables it).
	Socket string `yaml:"socket,omitempty"`
}

// MetricsConfig is the metrics configuration structure.
type MetricsConfig struct {
	// Metrics mode (none, pull, push).
	Mode string `yaml:"mode"`
	// Metrics pull address or push gateway address.
	Address string `yaml:"address"`

	// Metrics push job name.
	JobName string `yaml:"job_name,omitempty"`
	// Metrics push grouping labels.
	Labels map[string]string `yaml:"labels,omitempty"`
	// Metrics push interval.
	Interval time.Duration `yaml:"interval,omitempty"`
}

// QueryConfig is the query pagination configuration structure.
type QueryConfig struct {
	// Page size used when a listing query has no limit.
	DefaultLimit uint64 `yaml:"default_limit"`
	// Upper bound on any requested page size (0 means unbounded).
	MaxLimit uint64 `yaml:"max_limit"`
}

// Validate validates the configuration settings.
func (c *LogConfig) Validate() error {
	if c.Format != "" {
		var f logging.Format
		if err := f.Set(c.Format); err != nil {
			return err
		}
	}
	for module, lvl := range c.Level {
		var l logging.Level
		if err := l.Set(lvl); err != nil {
			return fmt.Errorf("module '%s': %w", module, err)
		}
	}
	return nil
}

// Validate validates the configuration settings.
func (c *CommonConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

// Validate validates the configuration settings.
func (c *GRPCConfig) Validate() error {
	return nil
}

// Validate validates the configuration settings.
func (c *MetricsConfig) Validate() error {
	switch c.Mode {
	case MetricsModeNone:
	case MetricsModePull:
		if len(c.Address) == 0 {
			return fmt.Errorf("missing address in pull mode")
		}
	case MetricsModePush:
		if len(c.Address) == 0 {
			return fmt.Errorf("missing address in push mode")
		}
		if len(c.JobName) == 0 {
			return fmt.Errorf("missing job_name in push mode")
		}
		if c.Interval <= 0 {
			return fmt.Errorf("missing interval in push mode")
		}
	default:
		return fmt.Errorf("unknown metrics mode: %s", c.Mode)
	}
	return nil
}

// Validate validates the configuration settings.
func (c *QueryConfig) Validate() error {
	if c.MaxLimit != 0 && c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("default_limit %d exceeds max_limit %d", c.DefaultLimit, c.MaxLimit)
	}
	return nil
}

// Validate validates the configuration settings.
func (c *Config) Validate() error {
	if err := c.Common.Validate(); err != nil {
		return fmt.Errorf("common: %w", err)
	}
	if err := c.GRPC.Validate(); err != nil {
		return fmt.Errorf("grpc: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.Query.Validate(); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

// DefaultConfig returns the default configuration settings.
func DefaultConfig() Config {
	return Config{
		Common: CommonConfig{
			DataDir: "",
			Log: LogConfig{
				File:   "",
				Format: "logfmt",
				Level: map[string]string{
					"default": "info",
					"badger":  "warn", // Compaction chatter.
				},
			},
		},
		GRPC: GRPCConfig{
			Port:   9090,
			Socket: "",
		},
		Metrics: MetricsConfig{
			Mode:     MetricsModeNone,
			Address:  "127.0.0.1:3000",
			JobName:  "",
			Labels:   map[string]string{},
			Interval: 5 * time.Second,
		},
		Query: QueryConfig{
			DefaultLimit: api.DefaultLimit,
			MaxLimit:     api.DefaultMaxLimit,
		},
	}
}

// Load parses a YAML configuration on top of the defaults, substituting
// environment variables first. Unknown fields are an error.
func Load(raw []byte) (*Config, error) {
	raw, err := envsubst.Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to substitute environment variables: %w", err)
	}
	return decode(raw)
}

// InitConfig initializes the global configuration from the given file.
func InitConfig(cfgFile string) error {
	raw, err := envsubst.ReadFile(cfgFile)
	if err != nil {
		return fmt.Errorf("unable to read config file '%s': %w", cfgFile, err)
	}
	cfg, err := decode(raw)
	if err != nil {
		return fmt.Errorf("failed to load config file '%s': %w", cfgFile, err)
	}
	GlobalConfig = *cfg
	return nil
}

func decode(raw []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func init() {
	GlobalConfig = DefaultConfig()
}
