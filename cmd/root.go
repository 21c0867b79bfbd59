// Package cmd implements the CLI commands for PageClone using Cobra.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/gaurav-prasanna/pageclone/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Global flag variables.
var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "pageclone",
	Short: "PageClone: clone a web page into a self-contained HTML document",
	Long: `PageClone loads a live page in a headless browser, sanitizes its markup and
styles, optionally has a model rebuild them as clean HTML and CSS, and emits a
single self-contained document.

Usage:
  pageclone clone <url> [flags]
  pageclone serve [flags]`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log_level", "", "Log level (overrides config)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and applies the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// newLogger writes human-readable logs to stderr so stdout stays clean.
func newLogger(cfg *config.Config) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(cfg.Level()).
		With().Timestamp().Logger()
}
