// Package config loads hubscan configuration using Viper.
//
// Precedence: defaults < hubscan.toml (found by walking up from the working
// directory) < HUBSCAN_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/crmforge/hubscan/errors"
)

// Config is the root hubscan configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	HubSpot  HubSpotConfig  `mapstructure:"hubspot"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HubSpotConfig holds upstream CRM API settings
type HubSpotConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	RequestTimeoutSec int    `mapstructure:"request_timeout_seconds"`
	MaxCallsPerWindow int    `mapstructure:"max_calls_per_window"`
	WindowSeconds     int    `mapstructure:"window_seconds"`
	Burst             int    `mapstructure:"burst"`
}

// ScanConfig holds orchestration settings
type ScanConfig struct {
	BatchSize              int `mapstructure:"batch_size"`
	MaxRetries             int `mapstructure:"max_retries"`
	RetryBaseDelayMs       int `mapstructure:"retry_base_delay_ms"`
	MaxErrorTrail          int `mapstructure:"max_error_trail"`
	MaxConcurrentPerTenant int `mapstructure:"max_concurrent_per_tenant"`
	MaxConcurrentGlobal    int `mapstructure:"max_concurrent_global"`
}

// ServerConfig holds settings for the thin control surface
type ServerConfig struct {
	LogJSON bool `mapstructure:"log_json"`
}

// RequestTimeout returns the HubSpot request timeout as a duration
func (c HubSpotConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// Window returns the rate-limit window as a duration
func (c HubSpotConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// RetryBaseDelay returns the backoff base delay as a duration
func (c ScanConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the hubscan configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("HUBSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if path := findProjectConfig(); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		// Missing or malformed project config is not fatal; defaults and
		// environment variables still apply
		_ = v.ReadInConfig()
	}

	viperInstance = v
	return v
}

// findProjectConfig searches for hubscan.toml by walking up the directory tree
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "hubscan.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
