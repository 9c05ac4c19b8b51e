package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 7600, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Index.M)
	assert.Equal(t, 32, cfg.Index.M0)
	assert.Equal(t, "euclidean", cfg.Index.Metric)
	assert.True(t, cfg.Index.KeepPruned)
	assert.False(t, cfg.Auth.Enabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ANNEX_HOST", "127.0.0.1")
	t.Setenv("ANNEX_PORT", "9100")
	t.Setenv("ANNEX_DIMENSIONS", "64")
	t.Setenv("ANNEX_METRIC", "cosine")
	t.Setenv("ANNEX_M", "8")
	t.Setenv("ANNEX_EF_SEARCH", "40")
	t.Setenv("ANNEX_KEEP_PRUNED", "false")
	t.Setenv("ANNEX_SNAPSHOT", "/tmp/annex.idx")
	t.Setenv("ANNEX_CACHE_TTL", "90s")

	cfg := LoadFromEnv()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.Address())
	assert.Equal(t, 64, cfg.Index.Dimensions)
	assert.Equal(t, "cosine", cfg.Index.Metric)
	assert.Equal(t, 8, cfg.Index.M)
	assert.Equal(t, 16, cfg.Index.M0, "M0 follows M unless overridden")
	assert.Equal(t, 40, cfg.Index.EfSearch)
	assert.False(t, cfg.Index.KeepPruned)
	assert.Equal(t, "/tmp/annex.idx", cfg.Index.SnapshotPath)
	assert.Equal(t, 90*time.Second, cfg.Cache.TTL)
}

func TestLoadFromEnvM0Override(t *testing.T) {
	t.Setenv("ANNEX_M", "8")
	t.Setenv("ANNEX_M0", "24")

	cfg := LoadFromEnv()
	assert.Equal(t, 24, cfg.Index.M0)
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"zero dimensions", func(c *Config) { c.Index.Dimensions = 0 }},
		{"zero M", func(c *Config) { c.Index.M = 0 }},
		{"zero efSearch", func(c *Config) { c.Index.EfSearch = 0 }},
		{"negative mL", func(c *Config) { c.Index.ML = -1 }},
		{"unknown metric", func(c *Config) { c.Index.Metric = "hamming" }},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }},
		{"rate limit without search rate", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.SearchPerSec = 0 }},
		{"rate limit without mutate rate", func(c *Config) { c.RateLimit.Enabled = true; c.RateLimit.MutatePerSec = 0 }},
		{"cache without capacity", func(c *Config) { c.Cache.Capacity = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIndexSettingsConversion(t *testing.T) {
	cfg := Default()
	cfg.Index.Metric = "cosine"
	cfg.Index.M = 12
	cfg.Index.ML = 0.5

	settings := cfg.Index.Settings()

	assert.NotNil(t, settings.Metric)
	assert.Equal(t, 12, settings.M)
	assert.Equal(t, 0.5, settings.ML)
	assert.True(t, settings.KeepPruned)
}
