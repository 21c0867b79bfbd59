package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
)

// AnthropicConfig configures the Anthropic generator.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	// Temperature is sent only when positive.
	Temperature float64
	// RequestTimeout bounds a single attempt; zero leaves it to ctx.
	RequestTimeout time.Duration
}

// AnthropicGenerator implements Generator with the Anthropic Messages API.
// SDK retries are disabled; the reconstructor owns the retry policy.
type AnthropicGenerator struct {
	client  anthropic.Client
	model   string
	temp    float64
	timeout time.Duration
	log     zerolog.Logger
}

// NewAnthropicGenerator creates an AnthropicGenerator.
func NewAnthropicGenerator(cfg AnthropicConfig, log zerolog.Logger) *AnthropicGenerator {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicGenerator{
		client:  anthropic.NewClient(opts...),
		model:   cfg.Model,
		temp:    cfg.Temperature,
		timeout: cfg.RequestTimeout,
		log:     log.With().Str("provider", "anthropic").Logger(),
	}
}

// Generate performs a non-streaming generation.
func (g *AnthropicGenerator) Generate(ctx context.Context, prompt Prompt) (*Completion, error) {
	attemptCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: prompt.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
		},
	}
	if prompt.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: prompt.System},
		}
	}
	if g.temp > 0 {
		params.Temperature = anthropic.Float(g.temp)
	}

	start := time.Now()
	resp, err := g.client.Messages.New(attemptCtx, params)
	if err != nil {
		return nil, classify(ctx, err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(b.Text)
		}
	}

	g.log.Debug().
		Str("model", string(resp.Model)).
		Str("stop_reason", string(resp.StopReason)).
		Int64("input_tokens", resp.Usage.InputTokens).
		Int64("output_tokens", resp.Usage.OutputTokens).
		Dur("elapsed", time.Since(start)).
		Msg("anthropic generation finished")

	return &Completion{
		Text:         text.String(),
		StopReason:   string(resp.StopReason),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// classify marks upstream failures worth one more attempt. ctx is the
// caller's context: once it is done nothing is retried.
func classify(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		wrapped := fmt.Errorf("anthropic status %d: %w", code, err)
		if code == http.StatusRequestTimeout || code == http.StatusConflict ||
			code == http.StatusTooManyRequests || code >= http.StatusInternalServerError {
			return NewTransientError(wrapped)
		}
		return wrapped
	}
	if ctx.Err() != nil {
		return fmt.Errorf("anthropic generation failed: %w", err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return NewTransientError(fmt.Errorf("anthropic generation failed: %w", err))
	}
	return fmt.Errorf("anthropic generation failed: %w", err)
}
