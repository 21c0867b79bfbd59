package cmd

import (
	"github.com/gaurav-prasanna/pageclone/config"
	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/browser"
	"github.com/gaurav-prasanna/pageclone/core/combine"
	"github.com/gaurav-prasanna/pageclone/core/fetch"
	"github.com/gaurav-prasanna/pageclone/core/normalize"
	"github.com/gaurav-prasanna/pageclone/core/pipeline"
	"github.com/gaurav-prasanna/pageclone/core/reconstruct"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// app wires the pipeline components from the configuration.
type app struct {
	pipeline *pipeline.Pipeline
	provider *browser.ChromeProvider
}

func newApp(cfg *config.Config, log zerolog.Logger, reg prometheus.Registerer, useModel bool) *app {
	provider := browser.NewChromeProvider(cfg.ChromeConfig(), log, reg)
	fetcher := fetch.New(provider, cfg.FetchOptions(), log)

	p := pipeline.New(cfg.PipelineConfig(), fetcher, normalize.New(), newReconstructor(cfg, log, useModel), combine.New(),
		pipeline.WithLogger(log),
		pipeline.WithRegisterer(reg),
	)
	return &app{pipeline: p, provider: provider}
}

// newReconstructor returns the model reconstructor, or nil when the model is
// off or has no API key.
func newReconstructor(cfg *config.Config, log zerolog.Logger, useModel bool) core.Reconstructor {
	if !useModel || !cfg.Model.Enabled {
		log.Info().Msg("reconstruction disabled")
		return nil
	}
	if !cfg.ModelReady() {
		log.Warn().Msg("ANTHROPIC_API_KEY is not set; reconstruction disabled")
		return nil
	}
	gen := reconstruct.NewAnthropicGenerator(cfg.AnthropicConfig(), log)
	return reconstruct.New(gen, cfg.ReconstructOptions(), log)
}

// Close releases the browser.
func (a *app) Close() {
	a.provider.Close()
}
