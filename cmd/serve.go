package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaurav-prasanna/pageclone/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var (
	flagAddr      string
	flagNoAIServe bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the clone pipeline over HTTP",
	Long: `Serve starts an HTTP server with:

  POST /generate   {"url": "https://example.com"} → {"html", "css", "combinedHtml", ...}
  GET  /health     liveness
  GET  /metrics    Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagAddr, "addr", "", "Listen address (overrides config)")
	serveCmd.Flags().BoolVar(&flagNoAIServe, "no-ai", false, "Skip model reconstruction")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagAddr != "" {
		cfg.Server.Addr = flagAddr
	}
	log := newLogger(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a := newApp(cfg, log, reg, !flagNoAIServe)
	defer a.Close()

	srv := server.New(a.pipeline, server.Options{
		AllowedOrigin: cfg.Server.AllowedOrigin,
		Gatherer:      reg,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx, cfg.Server.Addr)
}
