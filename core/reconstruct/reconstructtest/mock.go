// Package reconstructtest provides a mock Generator for tests.
//
// Usage:
//
//	// Single answer
//	gen := &reconstructtest.MockGenerator{
//	    Completions: []*reconstruct.Completion{reconstructtest.Answer(markup, css)},
//	}
//
//	// Transient failure, then an answer (retry testing)
//	gen := &reconstructtest.MockGenerator{
//	    Errs:        []error{reconstruct.NewTransientError(errors.New("overloaded"))},
//	    Completions: []*reconstruct.Completion{reconstructtest.Answer(markup, css)},
//	}
package reconstructtest

import (
	"context"
	"sync"

	"github.com/gaurav-prasanna/pageclone/core/reconstruct"
)

// MockGenerator is a thread-safe Generator returning canned results.
// Calls consume Errs first, then Completions. When both are exhausted the
// last completion is repeated.
type MockGenerator struct {
	mu          sync.Mutex
	Errs        []error
	Completions []*reconstruct.Completion
	// Block, when set, makes every call wait for ctx to be done.
	Block bool

	callCount int
	prompts   []reconstruct.Prompt
}

// Generate implements reconstruct.Generator.
func (m *MockGenerator) Generate(ctx context.Context, prompt reconstruct.Prompt) (*reconstruct.Completion, error) {
	m.mu.Lock()
	m.callCount++
	m.prompts = append(m.prompts, prompt)
	block := m.Block
	var err error
	var completion *reconstruct.Completion
	switch {
	case len(m.Errs) > 0:
		err, m.Errs = m.Errs[0], m.Errs[1:]
	case len(m.Completions) > 1:
		completion, m.Completions = m.Completions[0], m.Completions[1:]
	case len(m.Completions) == 1:
		completion = m.Completions[0]
	}
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if completion == nil {
		return &reconstruct.Completion{StopReason: "end_turn"}, nil
	}
	return completion, nil
}

// CallCount returns the number of Generate calls.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Prompts returns every prompt received, in order.
func (m *MockGenerator) Prompts() []reconstruct.Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]reconstruct.Prompt(nil), m.prompts...)
}

// Answer builds a well-formed completion with an html and a css block.
func Answer(markup, css string) *reconstruct.Completion {
	return &reconstruct.Completion{
		Text:       "Here is the page.\n\n```html\n" + markup + "\n```\n\n```css\n" + css + "\n```\n",
		StopReason: "end_turn",
	}
}
