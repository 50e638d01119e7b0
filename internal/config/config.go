// Package config loads and validates the service's runtime configuration
// from a YAML file with environment-variable overrides (§2's ambient
// config-loader component).
package config

import (
	"os"
	"strconv"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Config is the validated set of runtime knobs the service reads at
// startup. Field bounds per §4.6/§9.
type Config struct {
	PollingIntervalSeconds int    `yaml:"pollingIntervalSeconds"`
	MaxConcurrentChecks    int    `yaml:"maxConcurrentChecks"`
	ExecutionWindowMinutes int    `yaml:"executionWindowMinutes"`
	StorePath              string `yaml:"storePath"`
	BusQueueDir            string `yaml:"busQueueDir"`
	LogLevel               string `yaml:"logLevel"`
	MetricsAddr            string `yaml:"metricsAddr"`
}

const (
	defaultPollingIntervalSeconds = 60
	defaultMaxConcurrentChecks    = 100
	defaultExecutionWindowMinutes = 2
	defaultLogLevel               = "info"
	defaultMetricsAddr             = ":9090"
)

// Default returns a Config populated with every default named in §4.6/§9.
func Default() Config {
	return Config{
		PollingIntervalSeconds: defaultPollingIntervalSeconds,
		MaxConcurrentChecks:    defaultMaxConcurrentChecks,
		ExecutionWindowMinutes: defaultExecutionWindowMinutes,
		StorePath:              "./data",
		BusQueueDir:            "./data/bus",
		LogLevel:               defaultLogLevel,
		MetricsAddr:            defaultMetricsAddr,
	}
}

// Load reads path (if non-empty and present) over Default(), then applies
// FILEDISCOVERY_-prefixed environment overrides, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, errors.Wrapf(err, "config: read %s", path)
			}
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config: parse %s", path)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FILEDISCOVERY_POLLING_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollingIntervalSeconds = n
		}
	}
	if v := os.Getenv("FILEDISCOVERY_MAX_CONCURRENT_CHECKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentChecks = n
		}
	}
	if v := os.Getenv("FILEDISCOVERY_EXECUTION_WINDOW_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ExecutionWindowMinutes = n
		}
	}
	if v := os.Getenv("FILEDISCOVERY_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("FILEDISCOVERY_BUS_QUEUE_DIR"); v != "" {
		cfg.BusQueueDir = v
	}
	if v := os.Getenv("FILEDISCOVERY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FILEDISCOVERY_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
}

// Validate enforces the bounds named in §4.6/§9: pollingIntervalSeconds in
// [1,3600], maxConcurrentChecks in [1,1000], executionWindowMinutes in
// [1,60].
func (c Config) Validate() error {
	if c.PollingIntervalSeconds < 1 || c.PollingIntervalSeconds > 3600 {
		return errors.Errorf("config: pollingIntervalSeconds %d out of range [1,3600]", c.PollingIntervalSeconds)
	}
	if c.MaxConcurrentChecks < 1 || c.MaxConcurrentChecks > 1000 {
		return errors.Errorf("config: maxConcurrentChecks %d out of range [1,1000]", c.MaxConcurrentChecks)
	}
	if c.ExecutionWindowMinutes < 1 || c.ExecutionWindowMinutes > 60 {
		return errors.Errorf("config: executionWindowMinutes %d out of range [1,60]", c.ExecutionWindowMinutes)
	}
	if c.StorePath == "" {
		return errors.New("config: storePath must not be empty")
	}
	return nil
}
