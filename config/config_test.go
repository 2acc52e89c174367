package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crmforge/hubscan/errors"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, "hubscan.db", cfg.Database.Path)
	assert.Equal(t, "https://api.hubapi.com", cfg.HubSpot.BaseURL)
	assert.Equal(t, 100, cfg.HubSpot.MaxCallsPerWindow)
	assert.Equal(t, 10, cfg.HubSpot.WindowSeconds)
	assert.Equal(t, 100, cfg.Scan.BatchSize)
	assert.Equal(t, 5, cfg.Scan.MaxConcurrentPerTenant)

	require.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hubscan.toml")
	content := `
[hubspot]
base_url = "http://localhost:9900"
max_calls_per_window = 50

[scan]
batch_size = 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9900", cfg.HubSpot.BaseURL)
	assert.Equal(t, 50, cfg.HubSpot.MaxCallsPerWindow)
	assert.Equal(t, 25, cfg.Scan.BatchSize)
	// Untouched keys keep defaults
	assert.Equal(t, "hubscan.db", cfg.Database.Path)
}

func TestValidateRejectsBadBatchSize(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	cfg.Scan.BatchSize = 500
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfiguration(err))
}

func TestValidateRejectsGlobalBelowTenantCeiling(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	cfg.Scan.MaxConcurrentGlobal = 2
	cfg.Scan.MaxConcurrentPerTenant = 5
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.IsInvalidConfiguration(err))
}
