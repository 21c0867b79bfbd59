package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrBudgetExceeded reports that the overall pipeline deadline passed after
// the fetch stage had already succeeded.
var ErrBudgetExceeded = errors.New("pipeline time budget exceeded")

// InvalidInputError is returned for malformed or unsupported URLs. It is
// raised before any browser session is acquired.
type InvalidInputError struct {
	URL    string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid URL %q: %s", e.URL, e.Reason)
}

// FetchError is returned when the target page could not be loaded.
type FetchError struct {
	URL    string
	Status int // 0 when no HTTP response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the fetch failed because a deadline passed.
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// ReconstructionError describes a failed model call or a rejected model
// response. It never leaves the reconstruct stage.
type ReconstructionError struct {
	Reason string
	Err    error
}

func (e *ReconstructionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("reconstruction: %s: %v", e.Reason, e.Err)
	}
	return "reconstruction: " + e.Reason
}

func (e *ReconstructionError) Unwrap() error {
	return e.Err
}

// CombinerInvariantViolation signals a defect: content that reached the
// combiner cannot be assembled into a valid document.
type CombinerInvariantViolation struct {
	Reason string
}

func (e *CombinerInvariantViolation) Error() string {
	return "combiner invariant violated: " + e.Reason
}
