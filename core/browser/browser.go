// Package browser abstracts the browser-automation provider used by the
// fetcher. A Provider hands out exclusive Sessions; a Session loads one URL
// at a time and reports the rendered DOM and the active style sheets.
//
// The production implementation drives Chrome through chromedp, either as a
// local headless process or through a remote DevTools endpoint. Both are
// exposed through the same Provider interface so the fetcher never knows
// which one is in use.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sheet is one entry of document.styleSheets (or adoptedStyleSheets).
type Sheet struct {
	Href  string `json:"href"`
	Media string `json:"media"`
	// Text is the sheet's CSS. It is empty and Readable is false when the
	// browser refused script access (cross-origin sheets without CORS).
	Text     string `json:"text"`
	Readable bool   `json:"readable"`
}

// Snapshot is the rendered state of a page after it settled.
type Snapshot struct {
	Markup   string
	FinalURL string
	Status   int
	Sheets   []Sheet
	// Settled is false when the settle bound elapsed before the page went idle.
	Settled bool
}

// Session is a browser tab owned by exactly one request.
type Session interface {
	// Load navigates to url, waits up to settle for the page to go idle and
	// returns a snapshot. Navigation failures are *NavigationError.
	Load(ctx context.Context, url string, settle time.Duration) (*Snapshot, error)
	// Close releases the session. It is safe to call more than once.
	Close() error
}

// Provider hands out sessions.
type Provider interface {
	Acquire(ctx context.Context) (Session, error)
}

// ErrNavigationTimeout is reported when the page did not finish loading
// within the navigation deadline.
var ErrNavigationTimeout = errors.New("navigation timed out")

// transientCodes are Chrome net error codes worth a single retry.
var transientCodes = []string{
	"ERR_NAME_NOT_RESOLVED",
	"ERR_NAME_RESOLUTION_FAILED",
	"ERR_CONNECTION_RESET",
	"ERR_CONNECTION_CLOSED",
	"ERR_CONNECTION_ABORTED",
	"ERR_CONNECTION_REFUSED",
	"ERR_NETWORK_CHANGED",
	"ERR_INTERNET_DISCONNECTED",
	"ERR_EMPTY_RESPONSE",
}

// NavigationError wraps a failed navigation with the Chrome net error code,
// when one is known.
type NavigationError struct {
	URL  string
	Code string
	Err  error
}

func (e *NavigationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("navigating to %s: net::%s", e.URL, e.Code)
	}
	return fmt.Sprintf("navigating to %s: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is a connection-level error that may
// succeed on a retry.
func (e *NavigationError) Transient() bool {
	for _, code := range transientCodes {
		if e.Code == code {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is a transient navigation failure.
func IsTransient(err error) bool {
	var nav *NavigationError
	return errors.As(err, &nav) && nav.Transient()
}

// classifyNavigation converts a raw navigation error into a
// *NavigationError, extracting the net::ERR_* code from the message.
func classifyNavigation(url string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &NavigationError{URL: url, Err: fmt.Errorf("%w: %w", ErrNavigationTimeout, err)}
	}
	msg := err.Error()
	code := ""
	if idx := strings.Index(msg, "net::"); idx >= 0 {
		code = msg[idx+len("net::"):]
		if end := strings.IndexAny(code, " \t\n,;)"); end >= 0 {
			code = code[:end]
		}
	}
	if code == "ERR_TIMED_OUT" {
		return &NavigationError{URL: url, Code: code, Err: fmt.Errorf("%w: %w", ErrNavigationTimeout, err)}
	}
	return &NavigationError{URL: url, Code: code, Err: err}
}

// awaitSettled blocks until idle fires, max elapses or ctx is done.
// It reports whether the page went idle within the bound.
func awaitSettled(ctx context.Context, idle <-chan struct{}, max time.Duration) bool {
	if max <= 0 {
		return false
	}
	timer := time.NewTimer(max)
	defer timer.Stop()

	select {
	case <-idle:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
