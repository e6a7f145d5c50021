package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	setDefaults(v)
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig(t)
	require.NoError(t, validateConfig(cfg))

	assert.Equal(t, MaxBatchSize, cfg.Classifier.BatchSize)
	assert.Equal(t, MaxConcurrentBatchLimit, cfg.Classifier.MaxConcurrentBatches)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"batch too large", func(c *Config) { c.Classifier.BatchSize = 26 }},
		{"batch zero", func(c *Config) { c.Classifier.BatchSize = 0 }},
		{"concurrency too high", func(c *Config) { c.Classifier.MaxConcurrentBatches = 6 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"no warmer workers", func(c *Config) { c.Warmer.Workers = 0 }},
		{"openrouter without key", func(c *Config) { c.OpenRouter.Enabled = true }},
		{"no port", func(c *Config) { c.Server.Port = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			assert.Error(t, validateConfig(cfg))
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk-o...cdef", maskAPIKey("sk-or-0123456789abcdef"))
}
