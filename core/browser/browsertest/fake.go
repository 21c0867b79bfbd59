// Package browsertest provides an in-memory browser.Provider for tests.
// It records how many sessions were acquired and how many are still open,
// so callers can assert that every session is released.
package browsertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gaurav-prasanna/pageclone/core/browser"
)

// LoadFunc produces the outcome of the n-th Load call (1-based) on any
// session of the provider.
type LoadFunc func(ctx context.Context, url string, n int) (*browser.Snapshot, error)

// Provider is a fake browser.Provider.
type Provider struct {
	load LoadFunc

	// AcquireErr, when set, is returned by Acquire.
	AcquireErr error

	mu       sync.Mutex
	open     int
	acquired int
	loads    int
}

// NewProvider creates a Provider whose sessions answer with load.
func NewProvider(load LoadFunc) *Provider {
	return &Provider{load: load}
}

// Acquire implements browser.Provider.
func (p *Provider) Acquire(ctx context.Context) (browser.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.AcquireErr != nil {
		return nil, p.AcquireErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open++
	p.acquired++
	return &session{provider: p}, nil
}

// Open returns the number of sessions not yet closed.
func (p *Provider) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Acquired returns the total number of sessions handed out.
func (p *Provider) Acquired() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquired
}

// Loads returns the total number of Load calls.
func (p *Provider) Loads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads
}

type session struct {
	provider  *Provider
	closeOnce sync.Once
}

func (s *session) Load(ctx context.Context, url string, _ time.Duration) (*browser.Snapshot, error) {
	s.provider.mu.Lock()
	s.provider.loads++
	n := s.provider.loads
	s.provider.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &browser.NavigationError{URL: url, Err: err}
	}
	return s.provider.load(ctx, url, n)
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.provider.mu.Lock()
		s.provider.open--
		s.provider.mu.Unlock()
	})
	return nil
}

// Page answers every load with markup and sheets, status 200, final URL
// equal to the requested URL.
func Page(markup string, sheets ...browser.Sheet) LoadFunc {
	return func(_ context.Context, url string, _ int) (*browser.Snapshot, error) {
		return &browser.Snapshot{
			Markup:   markup,
			FinalURL: url,
			Status:   200,
			Sheets:   sheets,
			Settled:  true,
		}, nil
	}
}

// Status answers every load with an empty page and the given HTTP status.
func Status(code int) LoadFunc {
	return func(_ context.Context, url string, _ int) (*browser.Snapshot, error) {
		return &browser.Snapshot{Markup: "<html><body></body></html>", FinalURL: url, Status: code, Settled: true}, nil
	}
}

// Fail answers every load with err.
func Fail(err error) LoadFunc {
	return func(context.Context, string, int) (*browser.Snapshot, error) {
		return nil, err
	}
}

// FailFirst answers the first n loads with err and then delegates to next.
func FailFirst(n int, err error, next LoadFunc) LoadFunc {
	return func(ctx context.Context, url string, call int) (*browser.Snapshot, error) {
		if call <= n {
			return nil, err
		}
		return next(ctx, url, call)
	}
}

// Hang blocks until ctx is done and reports a navigation timeout.
func Hang() LoadFunc {
	return func(ctx context.Context, url string, _ int) (*browser.Snapshot, error) {
		<-ctx.Done()
		return nil, &browser.NavigationError{URL: url, Err: errors.Join(browser.ErrNavigationTimeout, ctx.Err())}
	}
}

// DNSFailure is the error Chrome reports for an unresolvable host.
func DNSFailure(url string) error {
	return &browser.NavigationError{
		URL:  url,
		Code: "ERR_NAME_NOT_RESOLVED",
		Err:  errors.New("page load error net::ERR_NAME_NOT_RESOLVED"),
	}
}

// InlineSheet is a readable inline <style> sheet.
func InlineSheet(text string) browser.Sheet {
	return browser.Sheet{Text: text, Readable: true}
}

// LinkedSheet is a readable linked sheet.
func LinkedSheet(href, text string) browser.Sheet {
	return browser.Sheet{Href: href, Text: text, Readable: true}
}

// CrossOriginSheet is a linked sheet whose rules the page could not read.
func CrossOriginSheet(href string) browser.Sheet {
	return browser.Sheet{Href: href}
}
