// Package cmd: clone command.
// This is the main command: it runs the pipeline
// fetch → normalize → reconstruct → combine for one URL, then renders the
// result and writes it to disk.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/output"
	"github.com/gaurav-prasanna/pageclone/core/render"
	"github.com/spf13/cobra"
)

// Clone flag variables.
var (
	flagJSON      bool
	flagMarkdown  bool
	flagSplit     bool
	flagNoAI      bool
	flagTimeout   time.Duration
	flagOutputDir string
)

var cloneCmd = &cobra.Command{
	Use:   "clone <url>",
	Short: "Clone a URL into a self-contained HTML document",
	Long: `Clone loads a page in a headless browser, sanitizes it, optionally rebuilds it
with a model, and writes a single HTML document with all styles inlined.

Examples:
  pageclone clone https://example.com
  pageclone clone https://example.com --split --output_dir ./out
  pageclone clone https://example.com --json --no-ai
  pageclone clone https://example.com --markdown --timeout 2m`,
	Args: cobra.ExactArgs(1),
	RunE: runClone,
}

func init() {
	rootCmd.AddCommand(cloneCmd)

	// Output format flags (mutually exclusive).
	cloneCmd.Flags().BoolVar(&flagJSON, "json", false, "Output structured JSON instead of HTML")
	cloneCmd.Flags().BoolVar(&flagMarkdown, "markdown", false, "Output a Markdown reader view instead of HTML")
	cloneCmd.Flags().BoolVar(&flagSplit, "split", false, "Write markup, styles and the combined document as separate files")

	cloneCmd.Flags().BoolVar(&flagNoAI, "no-ai", false, "Skip model reconstruction")
	cloneCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "Overall time budget (overrides config)")
	cloneCmd.Flags().StringVar(&flagOutputDir, "output_dir", "", "Output directory (default: current directory)")
}

func runClone(cmd *cobra.Command, args []string) error {
	rawURL := args[0]

	if err := validateCloneFlags(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagTimeout > 0 {
		cfg.Pipeline.Timeout = flagTimeout
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	log := newLogger(cfg)

	writer, err := output.New(flagOutputDir)
	if err != nil {
		return fmt.Errorf("initializing output writer: %w", err)
	}

	a := newApp(cfg, log, nil, !flagNoAI)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := a.pipeline.Generate(ctx, rawURL)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "  ! %s\n", w)
	}
	fmt.Fprintf(os.Stdout, "Cloned %s (%s)\n", result.FinalURL, result.Method)

	if flagSplit {
		paths, err := writer.WriteSplit(rawURL, result)
		for _, path := range paths {
			fmt.Fprintf(os.Stdout, "✓ Written: %s\n", path)
		}
		return err
	}

	renderer := selectRenderer()
	data, err := renderer.Render(result, core.MetadataFor(result, time.Now()))
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	path, err := writer.Write(rawURL, data, renderer.Extension())
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "✓ Written: %s\n", path)
	return nil
}

// validateCloneFlags checks that at most one output format is chosen.
func validateCloneFlags() error {
	formatCount := 0
	for _, set := range []bool{flagJSON, flagMarkdown, flagSplit} {
		if set {
			formatCount++
		}
	}
	if formatCount > 1 {
		return fmt.Errorf("--json, --markdown and --split are mutually exclusive")
	}
	if flagTimeout < 0 {
		return fmt.Errorf("--timeout must be positive")
	}
	return nil
}

// selectRenderer creates the Renderer chosen by the flags.
func selectRenderer() core.Renderer {
	switch {
	case flagJSON:
		return render.NewJSONRenderer()
	case flagMarkdown:
		return render.NewMarkdownRenderer()
	default:
		return render.NewHTMLRenderer()
	}
}
