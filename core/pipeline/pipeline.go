// Package pipeline sequences the clone stages:
// fetch → normalize → reconstruct → combine.
//
// A Pipeline holds only read-only collaborators and is safe for concurrent
// use. Each Generate call is one run with its own ID, state machine and
// wall-clock budget.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout        = 90 * time.Second
	defaultCombineReserve = 2 * time.Second
)

// State is a run's position in the state machine.
type State string

// Run states.
const (
	StateIdle           State = "idle"
	StateFetching       State = "fetching"
	StateNormalizing    State = "normalizing"
	StateReconstructing State = "reconstructing"
	StateCombining      State = "combining"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Transition is reported to the observer on every state change.
type Transition struct {
	RunID string
	From  State
	To    State
	Err   error // set when To is StateFailed
}

// Config holds the orchestrator settings.
type Config struct {
	// Timeout is the wall-clock budget of one run.
	Timeout time.Duration
	// CombineReserve is kept back from reconstruction so the run can still
	// combine the fallback content in time.
	CombineReserve time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = log }
}

// WithRegisterer registers the pipeline metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(p *Pipeline) { p.reg = reg }
}

// WithObserver sets a function called synchronously on every transition.
func WithObserver(fn func(Transition)) Option {
	return func(p *Pipeline) { p.observer = fn }
}

// Pipeline clones pages.
type Pipeline struct {
	fetcher       core.Fetcher
	normalizer    core.Normalizer
	reconstructor core.Reconstructor
	combiner      core.Combiner

	cfg      Config
	log      zerolog.Logger
	reg      prometheus.Registerer
	observer func(Transition)
	metrics  *metrics
}

// New creates a Pipeline. A nil reconstructor disables reconstruction;
// the normalized content is combined as-is.
func New(cfg Config, fetcher core.Fetcher, normalizer core.Normalizer, reconstructor core.Reconstructor, combiner core.Combiner, opts ...Option) *Pipeline {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CombineReserve <= 0 {
		cfg.CombineReserve = defaultCombineReserve
	}
	p := &Pipeline{
		fetcher:       fetcher,
		normalizer:    normalizer,
		reconstructor: reconstructor,
		combiner:      combiner,
		cfg:           cfg,
		log:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.reg == nil {
		p.reg = prometheus.NewRegistry()
	}
	p.metrics = newMetrics(p.reg)
	p.log = p.log.With().Str("component", "pipeline").Logger()
	return p
}

// Generate clones rawURL. It fails with *core.InvalidInputError for a bad
// URL, *core.FetchError when the page cannot be loaded, the caller's
// context error on cancellation, core.ErrBudgetExceeded when the budget
// runs out after the fetch, and *core.CombinerInvariantViolation on a
// defect. Reconstruction problems never fail a run.
func (p *Pipeline) Generate(ctx context.Context, rawURL string) (*core.CloneResult, error) {
	r := &run{
		p:     p,
		id:    uuid.NewString(),
		state: StateIdle,
	}
	r.log = p.log.With().Str("run_id", r.id).Str("url", rawURL).Logger()
	r.timings = zerolog.Dict()

	start := time.Now()
	result, err := r.execute(ctx, rawURL)
	elapsed := time.Since(start)

	if err != nil {
		p.metrics.requests.WithLabelValues(outcomeOf(err)).Inc()
		r.log.Error().Err(err).Dict("stages", r.timings).Dur("elapsed", elapsed).Msg("clone failed")
		return nil, err
	}
	p.metrics.requests.WithLabelValues(result.Method).Inc()
	r.log.Info().
		Str("method", result.Method).
		Str("final_url", result.FinalURL).
		Int("warnings", len(result.Warnings)).
		Dict("stages", r.timings).
		Dur("elapsed", elapsed).
		Msg("clone finished")
	return result, nil
}

type run struct {
	p       *Pipeline
	id      string
	state   State
	log     zerolog.Logger
	timings *zerolog.Event
}

func (r *run) execute(ctx context.Context, rawURL string) (*core.CloneResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.p.cfg.Timeout)
	defer cancel()

	var page *core.FetchedPage
	err := r.stage(StateFetching, func() (err error) {
		page, err = r.p.fetcher.Fetch(runCtx, rawURL)
		return err
	})
	if err != nil {
		return nil, r.fail(fmt.Errorf("fetch: %w", err))
	}

	var normalized *core.NormalizedContent
	err = r.stage(StateNormalizing, func() (err error) {
		normalized, err = r.p.normalizer.Normalize(page)
		return err
	})
	if err != nil {
		return nil, r.fail(fmt.Errorf("normalize: %w", err))
	}

	var reconstructed *core.ReconstructedContent
	err = r.stage(StateReconstructing, func() (err error) {
		reconstructed, err = r.reconstruct(ctx, runCtx, normalized)
		return err
	})
	if err != nil {
		return nil, r.fail(fmt.Errorf("reconstruct: %w", err))
	}

	var result *core.CloneResult
	err = r.stage(StateCombining, func() (err error) {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err = r.p.combiner.Combine(reconstructed)
		return err
	})
	if err != nil {
		return nil, r.fail(fmt.Errorf("combine: %w", err))
	}

	r.transition(StateDone, nil)
	return result, nil
}

// reconstruct runs the reconstructor within the budget left after the
// combine reserve. Without budget it falls back to the normalized content.
func (r *run) reconstruct(ctx, runCtx context.Context, content *core.NormalizedContent) (*core.ReconstructedContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runCtx.Err() != nil {
		return nil, core.ErrBudgetExceeded
	}
	if r.p.reconstructor == nil {
		return core.Passthrough(content), nil
	}

	deadline, _ := runCtx.Deadline()
	remaining := time.Until(deadline) - r.p.cfg.CombineReserve
	if remaining <= 0 {
		r.p.metrics.fallbacks.WithLabelValues(fallbackBudget).Inc()
		r.log.Warn().Dur("remaining", time.Until(deadline)).Msg("no budget left for reconstruction")
		out := core.Passthrough(content)
		out.Warnings = append(slices.Clone(out.Warnings), "reconstruction skipped: time budget exhausted")
		return out, nil
	}

	reconCtx, cancel := context.WithTimeout(runCtx, remaining)
	defer cancel()
	out := r.p.reconstructor.Reconstruct(reconCtx, content)
	if out == nil {
		out = core.Passthrough(content)
	}
	if out.Method() != core.MethodReconstructed {
		r.p.metrics.fallbacks.WithLabelValues(fallbackModel).Inc()
	}
	return out, nil
}

func (r *run) stage(s State, fn func() error) error {
	r.transition(s, nil)
	start := time.Now()
	err := fn()
	d := time.Since(start)
	r.p.metrics.observeStage(s, d)
	r.timings.Dur(string(s), d)
	return err
}

func (r *run) fail(err error) error {
	r.transition(StateFailed, err)
	return err
}

func (r *run) transition(to State, err error) {
	from := r.state
	r.state = to
	r.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("state transition")
	if r.p.observer != nil {
		r.p.observer(Transition{RunID: r.id, From: from, To: to, Err: err})
	}
}

func outcomeOf(err error) string {
	var invalid *core.InvalidInputError
	var fetchErr *core.FetchError
	switch {
	case errors.As(err, &invalid):
		return outcomeInvalidInput
	case errors.As(err, &fetchErr):
		return outcomeFetchFailed
	case errors.Is(err, core.ErrBudgetExceeded):
		return outcomeBudgetExceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return outcomeCancelled
	default:
		return outcomeFailed
	}
}
