package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pageclone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 90*time.Second, cfg.Pipeline.Timeout)
	assert.False(t, cfg.ModelReady(), "no API key by default")
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
log_level: debug
browser:
  max_sessions: 2
  navigation_timeout: 15s
fetch:
  settle_timeout: 2s
model:
  name: claude-haiku-4-5
  max_tokens: 8000
pipeline:
  timeout: 45s
  combine_reserve: 1s
server:
  addr: ":9090"
`)
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	t.Setenv("PAGECLONE_TIMEOUT", "30s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, 2, cfg.Browser.MaxSessions)
	assert.True(t, cfg.Browser.Headless, "unset fields keep their defaults")
	assert.Equal(t, 2*time.Second, cfg.Fetch.SettleTimeout)
	assert.Equal(t, "claude-haiku-4-5", cfg.Model.Name)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.Timeout, "environment overrides the file")
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.True(t, cfg.ModelReady())

	assert.Equal(t, "sk-test", cfg.AnthropicConfig().APIKey)
	assert.Equal(t, int64(8000), cfg.ReconstructOptions().MaxTokens)
	assert.Equal(t, 15*time.Second, cfg.ChromeConfig().NavigationTimeout)
	assert.Equal(t, time.Second, cfg.PipelineConfig().CombineReserve)
	assert.Equal(t, 2*time.Second, cfg.FetchOptions().SettleTimeout)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "reading config")
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "pipeline: [\n"))
		assert.ErrorContains(t, err, "parsing config")
	})

	t.Run("bad env duration", func(t *testing.T) {
		t.Setenv("PAGECLONE_TIMEOUT", "soon")
		_, err := Load("")
		assert.ErrorContains(t, err, "PAGECLONE_TIMEOUT")
	})

	t.Run("bad env bool", func(t *testing.T) {
		t.Setenv("PAGECLONE_ALLOW_PRIVATE", "perhaps")
		_, err := Load("")
		assert.ErrorContains(t, err, "PAGECLONE_ALLOW_PRIVATE")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"sessions", func(c *Config) { c.Browser.MaxSessions = 0 }, "max_sessions"},
		{"timeout", func(c *Config) { c.Pipeline.Timeout = 0 }, "pipeline.timeout"},
		{"reserve", func(c *Config) { c.Pipeline.CombineReserve = c.Pipeline.Timeout }, "combine_reserve"},
		{"retain ratio", func(c *Config) { c.Model.MinRetainRatio = 1.5 }, "min_retain_ratio"},
		{"model name", func(c *Config) { c.Model.Name = "" }, "model.name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	t.Run("disabled model needs no name", func(t *testing.T) {
		cfg := Default()
		cfg.Model.Enabled = false
		cfg.Model.Name = ""
		assert.NoError(t, cfg.Validate())
	})
}
