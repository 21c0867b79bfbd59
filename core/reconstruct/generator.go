package reconstruct

import (
	"context"
	"errors"
)

// StopMaxTokens is the stop reason of a completion cut off by the token cap.
const StopMaxTokens = "max_tokens"

// Prompt is a single-turn request to a generative model.
type Prompt struct {
	System    string
	User      string
	MaxTokens int64
}

// Completion is the model's answer to a Prompt.
type Completion struct {
	Text         string
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// Generator calls a generative model. Implementations must be safe for
// concurrent use and must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (*Completion, error)
}

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}
