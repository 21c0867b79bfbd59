// Package reconstruct implements the Reconstructor interface.
// A generative model is asked to rebuild normalized content as clean markup
// and styles. Every answer passes a validation gate field by field; anything
// that fails it, and any failed model call, falls back to the normalized
// content, so reconstruction never fails a clone.
package reconstruct

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/extract"
	"github.com/gaurav-prasanna/pageclone/core/normalize"
	"github.com/rs/zerolog"
)

const (
	defaultMinRetainRatio  = 0.5
	defaultRetryBackoff    = time.Second
	defaultMaxMarkupChars  = 60_000
	defaultMaxStyleChars   = 40_000
	defaultMaxOutlineWords = 800
	defaultMaxTokens       = 16_000
)

// Options tunes the reconstructor.
type Options struct {
	Limits
	// MinRetainRatio is the smallest accepted markup length, as a fraction
	// of the normalized markup length.
	MinRetainRatio float64
	// RetryBackoff is the delay before the single retry of a transient failure.
	RetryBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxMarkupChars <= 0 {
		o.MaxMarkupChars = defaultMaxMarkupChars
	}
	if o.MaxStyleChars <= 0 {
		o.MaxStyleChars = defaultMaxStyleChars
	}
	if o.MaxOutlineWords <= 0 {
		o.MaxOutlineWords = defaultMaxOutlineWords
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = defaultMaxTokens
	}
	if o.MinRetainRatio <= 0 {
		o.MinRetainRatio = defaultMinRetainRatio
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = defaultRetryBackoff
	}
	return o
}

// ModelReconstructor reconstructs content with a Generator.
type ModelReconstructor struct {
	gen       Generator
	opts      Options
	sanitizer *extract.Sanitizer
	log       zerolog.Logger
}

// New creates a ModelReconstructor. A nil gen yields a reconstructor that
// returns its input unchanged.
func New(gen Generator, opts Options, log zerolog.Logger) *ModelReconstructor {
	return &ModelReconstructor{
		gen:       gen,
		opts:      opts.withDefaults(),
		sanitizer: extract.New(),
		log:       log.With().Str("component", "reconstruct").Logger(),
	}
}

// Reconstruct returns the model's version of content where it passes
// validation and content itself everywhere else.
func (r *ModelReconstructor) Reconstruct(ctx context.Context, content *core.NormalizedContent) *core.ReconstructedContent {
	out := core.Passthrough(content)
	if r.gen == nil {
		return out
	}

	prompt, sent, stats := buildPrompt(content, r.opts.Limits)
	r.log.Debug().
		Str("url", content.FinalURL).
		Bool("markup_truncated", stats.MarkupTruncated).
		Bool("styles_filtered", stats.StylesFiltered).
		Bool("styles_truncated", stats.StylesTruncated).
		Bool("outline", stats.OutlineIncluded).
		Int("prompt_bytes", len(prompt.User)).
		Msg("prompt built")

	completion, err := r.generate(ctx, prompt)
	if err != nil {
		r.fallback(content, &core.ReconstructionError{Reason: "model call failed", Err: err})
		return out
	}
	if completion.StopReason == StopMaxTokens {
		r.fallback(content, &core.ReconstructionError{Reason: "response cut off at the token limit"})
		return out
	}

	resp := parseResponse(completion.Text)
	base, _ := url.Parse(content.FinalURL)

	var embedded []string
	if !resp.HasMarkup {
		r.reject(content, "markup", &core.ReconstructionError{Reason: resp.MarkupNotes})
	} else if err := validateMarkup(resp.Markup, sent, r.opts.MinRetainRatio); err != nil {
		r.reject(content, "markup", &core.ReconstructionError{Reason: "markup rejected", Err: err})
	} else if res, err := r.sanitizer.Sanitize(resp.Markup, base); err != nil {
		r.reject(content, "markup", &core.ReconstructionError{Reason: "markup rejected", Err: err})
	} else {
		out.Markup = res.Markup
		out.MarkupSource = core.SourceModel
		embedded = r.acceptEmbedded(res.EmbeddedStyles, base)
	}

	if !resp.HasStyles {
		r.reject(content, "styles", &core.ReconstructionError{Reason: "no css block in response"})
	} else if err := validateStyles(resp.Styles); err != nil {
		r.reject(content, "styles", &core.ReconstructionError{Reason: "styles rejected", Err: err})
	} else {
		out.Styles = extract.RewriteURLs(resp.Styles, base)
		out.StyleSource = core.SourceModel
	}

	if len(embedded) > 0 {
		if out.Styles != "" {
			embedded = append([]string{out.Styles}, embedded...)
		}
		out.Styles = strings.Join(embedded, "\n")
	}

	r.log.Info().
		Str("url", content.FinalURL).
		Str("method", out.Method()).
		Int64("input_tokens", completion.InputTokens).
		Int64("output_tokens", completion.OutputTokens).
		Msg("reconstruction finished")
	return out
}

// generate calls the model, retrying once after a transient failure.
func (r *ModelReconstructor) generate(ctx context.Context, prompt Prompt) (*Completion, error) {
	var completion *Completion
	attempt := 0
	op := func() error {
		attempt++
		c, err := r.gen.Generate(ctx, prompt)
		if err != nil {
			if IsTransient(err) && ctx.Err() == nil {
				r.log.Info().Err(err).Int("attempt", attempt).Msg("transient model failure")
				return err
			}
			return backoff.Permanent(err)
		}
		completion = c
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.opts.RetryBackoff
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, 1), ctx)); err != nil {
		return nil, err
	}
	return completion, nil
}

// acceptEmbedded keeps the <style> blocks of accepted markup that are safe
// to append to the style document.
func (r *ModelReconstructor) acceptEmbedded(styles []string, base *url.URL) []string {
	var kept []string
	for _, css := range styles {
		if err := validateStyles(css); err != nil {
			r.log.Debug().Err(err).Msg("dropped embedded style block")
			continue
		}
		kept = append(kept, normalize.Neutralize(extract.RewriteURLs(css, base)))
	}
	return kept
}

func (r *ModelReconstructor) fallback(content *core.NormalizedContent, err *core.ReconstructionError) {
	r.log.Warn().Err(err).Str("url", content.FinalURL).Msg("reconstruction failed; using normalized content")
}

func (r *ModelReconstructor) reject(content *core.NormalizedContent, field string, err *core.ReconstructionError) {
	r.log.Warn().Err(err).Str("url", content.FinalURL).Str("field", field).Msg("model output rejected; keeping normalized field")
}
