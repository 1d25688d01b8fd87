package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "solana", cfg.Enrichment.TargetChain)
	assert.Equal(t, 20, cfg.Enrichment.BatchSize)
	assert.Equal(t, 50, cfg.Enrichment.MaxTokens)
	assert.Equal(t, 25000.0, cfg.Enrichment.MinMarketCap)
	assert.Equal(t, 10*time.Second, cfg.DexScreener.Limits.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Cache.PollInterval)
	assert.Equal(t, time.Hour, cfg.Cache.MetadataTTL)
	assert.True(t, cfg.Cache.PrimaryEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HELIUS_API_KEY", "secret")
	t.Setenv("ENRICHMENT_MAX_TOKENS", "7")
	t.Setenv("CACHE_BASIC_TTL", "90s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Helius.APIKey)
	assert.Equal(t, 7, cfg.Enrichment.MaxTokens)
	assert.Equal(t, 90*time.Second, cfg.Cache.BasicTTL)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("enrichment:\n  batch_size: 5\n  min_market_cap: 1000\ncache:\n  primary_enabled: false\n")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Enrichment.BatchSize)
	assert.Equal(t, 1000.0, cfg.Enrichment.MinMarketCap)
	assert.False(t, cfg.Cache.PrimaryEnabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad dexscreener url", func(c *Config) { c.DexScreener.BaseURL = "ftp://x" }},
		{"bad redis url", func(c *Config) { c.Redis.URL = "http://x" }},
		{"zero batch size", func(c *Config) { c.Enrichment.BatchSize = 0 }},
		{"zero max tokens", func(c *Config) { c.Enrichment.MaxTokens = 0 }},
		{"negative market cap", func(c *Config) { c.Enrichment.MinMarketCap = -1 }},
		{"zero rate", func(c *Config) { c.Helius.Limits.RequestsPerMinute = 0 }},
		{"wait shorter than poll", func(c *Config) { c.Cache.WaitTimeout = time.Millisecond }},
		{"empty chain", func(c *Config) { c.Enrichment.TargetChain = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}
