// Package config loads PageClone settings.
//
// Settings are layered: built-in defaults, then an optional YAML file, then
// environment variables (a .env file in the working directory is loaded
// first). Command-line flags are applied on top by the cmd package.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gaurav-prasanna/pageclone/core/browser"
	"github.com/gaurav-prasanna/pageclone/core/fetch"
	"github.com/gaurav-prasanna/pageclone/core/pipeline"
	"github.com/gaurav-prasanna/pageclone/core/reconstruct"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Browser  BrowserConfig  `yaml:"browser"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Model    ModelConfig    `yaml:"model"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Server   ServerConfig   `yaml:"server"`
}

// BrowserConfig configures the headless browser.
type BrowserConfig struct {
	RemoteURL         string        `yaml:"remote_url"`
	Headless          bool          `yaml:"headless"`
	UserAgent         string        `yaml:"user_agent"`
	MaxSessions       int           `yaml:"max_sessions"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ViewportWidth     int           `yaml:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height"`
}

// FetchConfig configures page loading.
type FetchConfig struct {
	SettleTimeout         time.Duration `yaml:"settle_timeout"`
	RetryBackoff          time.Duration `yaml:"retry_backoff"`
	AllowPrivateNetworks  bool          `yaml:"allow_private_networks"`
	StylesheetTimeout     time.Duration `yaml:"stylesheet_timeout"`
	MaxStylesheetBytes    int64         `yaml:"max_stylesheet_bytes"`
	StylesheetConcurrency int           `yaml:"stylesheet_concurrency"`
}

// ModelConfig configures the reconstruction model.
type ModelConfig struct {
	Enabled         bool          `yaml:"enabled"`
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Name            string        `yaml:"name"`
	Temperature     float64       `yaml:"temperature"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	MaxTokens       int64         `yaml:"max_tokens"`
	MaxMarkupChars  int           `yaml:"max_markup_chars"`
	MaxStyleChars   int           `yaml:"max_style_chars"`
	MaxOutlineWords int           `yaml:"max_outline_words"`
	MinRetainRatio  float64       `yaml:"min_retain_ratio"`
	RetryBackoff    time.Duration `yaml:"retry_backoff"`
}

// PipelineConfig configures the orchestrator.
type PipelineConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	CombineReserve time.Duration `yaml:"combine_reserve"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	AllowedOrigin string `yaml:"allowed_origin"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Browser: BrowserConfig{
			Headless:          true,
			MaxSessions:       4,
			NavigationTimeout: 30 * time.Second,
			ViewportWidth:     1440,
			ViewportHeight:    900,
		},
		Fetch: FetchConfig{
			SettleTimeout:         5 * time.Second,
			RetryBackoff:          500 * time.Millisecond,
			StylesheetTimeout:     10 * time.Second,
			MaxStylesheetBytes:    2 << 20,
			StylesheetConcurrency: 4,
		},
		Model: ModelConfig{
			Enabled:         true,
			Name:            "claude-sonnet-4-5",
			RequestTimeout:  60 * time.Second,
			MaxTokens:       16_000,
			MaxMarkupChars:  60_000,
			MaxStyleChars:   40_000,
			MaxOutlineWords: 800,
			MinRetainRatio:  0.5,
			RetryBackoff:    time.Second,
		},
		Pipeline: PipelineConfig{
			Timeout:        90 * time.Second,
			CombineReserve: 2 * time.Second,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			AllowedOrigin: "*",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the environment.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("PAGECLONE_LOG_LEVEL", c.LogLevel)
	c.Browser.RemoteURL = getEnv("PAGECLONE_BROWSER_URL", c.Browser.RemoteURL)
	c.Model.APIKey = getEnv("ANTHROPIC_API_KEY", c.Model.APIKey)
	c.Model.BaseURL = getEnv("ANTHROPIC_BASE_URL", c.Model.BaseURL)
	c.Model.Name = getEnv("PAGECLONE_MODEL", c.Model.Name)
	c.Server.Addr = getEnv("PAGECLONE_ADDR", c.Server.Addr)

	var err error
	if c.Pipeline.Timeout, err = getEnvDuration("PAGECLONE_TIMEOUT", c.Pipeline.Timeout); err != nil {
		return err
	}
	if c.Fetch.AllowPrivateNetworks, err = getEnvBool("PAGECLONE_ALLOW_PRIVATE", c.Fetch.AllowPrivateNetworks); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Browser.MaxSessions < 1 {
		errs = append(errs, errors.New("browser.max_sessions must be at least 1"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("browser.navigation_timeout must be positive"))
	}
	if c.Pipeline.Timeout <= 0 {
		errs = append(errs, errors.New("pipeline.timeout must be positive"))
	}
	if c.Pipeline.CombineReserve < 0 || c.Pipeline.CombineReserve >= c.Pipeline.Timeout {
		errs = append(errs, errors.New("pipeline.combine_reserve must be non-negative and below pipeline.timeout"))
	}
	if c.Model.MinRetainRatio < 0 || c.Model.MinRetainRatio > 1 {
		errs = append(errs, errors.New("model.min_retain_ratio must be within [0, 1]"))
	}
	if c.Model.Enabled && c.Model.Name == "" {
		errs = append(errs, errors.New("model.name is required when the model is enabled"))
	}
	if c.Model.MaxTokens < 1 {
		errs = append(errs, errors.New("model.max_tokens must be positive"))
	}
	return errors.Join(errs...)
}

// ModelReady reports whether reconstruction can call the model.
func (c *Config) ModelReady() bool {
	return c.Model.Enabled && c.Model.APIKey != ""
}

// Level returns the configured log level.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

// ChromeConfig maps the browser section to the provider settings.
func (c *Config) ChromeConfig() browser.ChromeConfig {
	return browser.ChromeConfig{
		RemoteURL:         c.Browser.RemoteURL,
		Headless:          c.Browser.Headless,
		UserAgent:         c.Browser.UserAgent,
		MaxSessions:       c.Browser.MaxSessions,
		NavigationTimeout: c.Browser.NavigationTimeout,
		ViewportWidth:     c.Browser.ViewportWidth,
		ViewportHeight:    c.Browser.ViewportHeight,
	}
}

// FetchOptions maps the fetch section to the fetcher options.
func (c *Config) FetchOptions() fetch.Options {
	return fetch.Options{
		SettleTimeout:         c.Fetch.SettleTimeout,
		RetryBackoff:          c.Fetch.RetryBackoff,
		AllowPrivateNetworks:  c.Fetch.AllowPrivateNetworks,
		StylesheetTimeout:     c.Fetch.StylesheetTimeout,
		MaxStylesheetBytes:    c.Fetch.MaxStylesheetBytes,
		StylesheetConcurrency: c.Fetch.StylesheetConcurrency,
		UserAgent:             c.Browser.UserAgent,
	}
}

// AnthropicConfig maps the model section to the generator settings.
func (c *Config) AnthropicConfig() reconstruct.AnthropicConfig {
	return reconstruct.AnthropicConfig{
		APIKey:         c.Model.APIKey,
		BaseURL:        c.Model.BaseURL,
		Model:          c.Model.Name,
		Temperature:    c.Model.Temperature,
		RequestTimeout: c.Model.RequestTimeout,
	}
}

// ReconstructOptions maps the model section to the reconstructor options.
func (c *Config) ReconstructOptions() reconstruct.Options {
	return reconstruct.Options{
		Limits: reconstruct.Limits{
			MaxMarkupChars:  c.Model.MaxMarkupChars,
			MaxStyleChars:   c.Model.MaxStyleChars,
			MaxOutlineWords: c.Model.MaxOutlineWords,
			MaxTokens:       c.Model.MaxTokens,
		},
		MinRetainRatio: c.Model.MinRetainRatio,
		RetryBackoff:   c.Model.RetryBackoff,
	}
}

// PipelineConfig maps the pipeline section to the orchestrator settings.
func (c *Config) PipelineConfig() pipeline.Config {
	return pipeline.Config{
		Timeout:        c.Pipeline.Timeout,
		CombineReserve: c.Pipeline.CombineReserve,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
