package config

import (
	"github.com/spf13/viper"

	"github.com/crmforge/hubscan/errors"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "hubscan.db")

	// HubSpot API defaults
	v.SetDefault("hubspot.base_url", "https://api.hubapi.com")
	v.SetDefault("hubspot.request_timeout_seconds", 30)
	v.SetDefault("hubspot.max_calls_per_window", 100) // HubSpot burst envelope
	v.SetDefault("hubspot.window_seconds", 10)        // 100 calls / 10 seconds
	v.SetDefault("hubspot.burst", 10)

	// Scan orchestration defaults
	v.SetDefault("scan.batch_size", 100) // HubSpot page-size ceiling
	v.SetDefault("scan.max_retries", 3)
	v.SetDefault("scan.retry_base_delay_ms", 500)
	v.SetDefault("scan.max_error_trail", 100)
	v.SetDefault("scan.max_concurrent_per_tenant", 5)
	v.SetDefault("scan.max_concurrent_global", 20)

	// Control surface defaults
	v.SetDefault("server.log_json", false)
}

// Validate checks configuration invariants that defaults alone cannot
// guarantee once a config file or environment override is in play.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.NewInvalidConfigurationError("database.path must not be empty")
	}
	if c.HubSpot.BaseURL == "" {
		return errors.NewInvalidConfigurationError("hubspot.base_url must not be empty")
	}
	if c.Scan.BatchSize < 1 || c.Scan.BatchSize > 100 {
		return errors.NewInvalidConfigurationError("scan.batch_size must be in [1,100], got %d", c.Scan.BatchSize)
	}
	if c.HubSpot.MaxCallsPerWindow < 1 {
		return errors.NewInvalidConfigurationError("hubspot.max_calls_per_window must be positive")
	}
	if c.HubSpot.WindowSeconds < 1 {
		return errors.NewInvalidConfigurationError("hubspot.window_seconds must be positive")
	}
	if c.Scan.MaxConcurrentPerTenant < 1 {
		return errors.NewInvalidConfigurationError("scan.max_concurrent_per_tenant must be positive")
	}
	if c.Scan.MaxConcurrentGlobal < c.Scan.MaxConcurrentPerTenant {
		return errors.NewInvalidConfigurationError(
			"scan.max_concurrent_global (%d) must be >= scan.max_concurrent_per_tenant (%d)",
			c.Scan.MaxConcurrentGlobal, c.Scan.MaxConcurrentPerTenant)
	}
	return nil
}
