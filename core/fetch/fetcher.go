// Package fetch implements the Fetcher interface.
// It drives a browser session to load the live-rendered page, waits for it
// to settle, and returns the rendered DOM plus every active style sheet.
// Sheets the browser would not expose to script are downloaded over HTTP.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/browser"
	"github.com/gaurav-prasanna/pageclone/core/urls"
	"github.com/rs/zerolog"
)

const (
	defaultSettleTimeout = 5 * time.Second
	defaultRetryBackoff  = 500 * time.Millisecond
	defaultUserAgent     = "PageClone/1.0 (https://github.com/gaurav-prasanna/pageclone)"
)

// Options tunes the fetcher.
type Options struct {
	// SettleTimeout bounds the wait for the page to go network-idle.
	SettleTimeout time.Duration
	// RetryBackoff is the delay before the single retry of a transient failure.
	RetryBackoff time.Duration
	// AllowPrivateNetworks permits loopback/private targets (tests, intranets).
	AllowPrivateNetworks bool

	StylesheetTimeout     time.Duration
	MaxStylesheetBytes    int64
	StylesheetConcurrency int
	UserAgent             string
}

// BrowserFetcher fetches pages through a browser.Provider.
type BrowserFetcher struct {
	provider browser.Provider
	sheets   *StylesheetLoader
	opts     Options
	log      zerolog.Logger
}

// New creates a BrowserFetcher.
func New(provider browser.Provider, opts Options, log zerolog.Logger) *BrowserFetcher {
	if opts.SettleTimeout <= 0 {
		opts.SettleTimeout = defaultSettleTimeout
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &BrowserFetcher{
		provider: provider,
		sheets: NewStylesheetLoader(
			&http.Client{Timeout: opts.StylesheetTimeout},
			opts.MaxStylesheetBytes,
			opts.StylesheetConcurrency,
			opts.UserAgent,
			opts.AllowPrivateNetworks,
		),
		opts: opts,
		log:  log.With().Str("component", "fetch").Logger(),
	}
}

// Fetch loads rawURL and returns its rendered markup and styles.
// Invalid URLs fail with *core.InvalidInputError before a session is
// acquired; every other failure is a *core.FetchError.
func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) (*core.FetchedPage, error) {
	target, err := urls.ValidateTarget(rawURL, f.opts.AllowPrivateNetworks)
	if err != nil {
		return nil, err
	}

	snap, err := f.snapshot(ctx, target.String())
	if err != nil {
		return nil, &core.FetchError{URL: rawURL, Err: err}
	}
	if snap.Status != 0 && (snap.Status < 200 || snap.Status >= 300) {
		return nil, &core.FetchError{
			URL:    rawURL,
			Status: snap.Status,
			Err:    fmt.Errorf("unexpected status %d", snap.Status),
		}
	}

	finalURL := snap.FinalURL
	if finalURL == "" {
		finalURL = target.String()
	}

	var warnings []string
	if !snap.Settled {
		warnings = append(warnings, "page did not reach network idle before the settle timeout")
	}

	styles, sheetWarnings := f.sheets.Resolve(ctx, finalURL, snap.Sheets)
	warnings = append(warnings, sheetWarnings...)

	f.log.Debug().
		Str("url", rawURL).
		Str("final_url", finalURL).
		Int("status", snap.Status).
		Int("markup_bytes", len(snap.Markup)).
		Int("stylesheets", len(styles)).
		Msg("page fetched")

	return &core.FetchedPage{
		URL:      rawURL,
		FinalURL: finalURL,
		Status:   snap.Status,
		Markup:   snap.Markup,
		Styles:   styles,
		Warnings: warnings,
	}, nil
}

// snapshot owns the browser session for the duration of the page load. The
// session is released on every exit path, before any stylesheet downloads.
func (f *BrowserFetcher) snapshot(ctx context.Context, target string) (*browser.Snapshot, error) {
	session, err := f.provider.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring browser session: %w", err)
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			f.log.Warn().Err(cerr).Str("url", target).Msg("closing browser session")
		}
	}()

	var snap *browser.Snapshot
	attempt := 0
	load := func() error {
		attempt++
		s, err := session.Load(ctx, target, f.opts.SettleTimeout)
		if err != nil {
			if browser.IsTransient(err) && ctx.Err() == nil {
				f.log.Info().Err(err).Str("url", target).Int("attempt", attempt).Msg("transient navigation failure")
				return err
			}
			return backoff.Permanent(err)
		}
		snap = s
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = f.opts.RetryBackoff
	if err := backoff.Retry(load, backoff.WithContext(backoff.WithMaxRetries(policy, 1), ctx)); err != nil {
		return nil, err
	}
	return snap, nil
}
