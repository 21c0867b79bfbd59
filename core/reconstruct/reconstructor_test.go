package reconstruct_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/reconstruct"
	"github.com/gaurav-prasanna/pageclone/core/reconstruct/reconstructtest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const normalizedMarkup = `<!DOCTYPE html><html><head><title>Shop</title></head><body>` +
	`<div class="wrap"><h1>Shop</h1><img src="https://example.com/a.png" alt="a">` +
	`<p>Lots of products for sale here.</p><img src="https://example.com/b.png" alt="b"></div></body></html>`

func normalized() *core.NormalizedContent {
	return &core.NormalizedContent{
		Markup:   normalizedMarkup,
		Styles:   ".wrap{margin:0 auto}\nh1{color:red}",
		FinalURL: "https://example.com/shop/",
		Title:    "Shop",
	}
}

const modelMarkup = `<!DOCTYPE html><html><head><title>Shop</title><style>.extra{padding:0}</style>` +
	`<script>track()</script></head><body><main class="wrap"><h1 onclick="x()">Shop</h1>` +
	`<img src="a.png" alt="a"><p>Lots of products for sale here.</p><img src="https://example.com/b.png" alt="b"></main></body></html>`

func newReconstructor(gen reconstruct.Generator) *reconstruct.ModelReconstructor {
	return reconstruct.New(gen, reconstruct.Options{RetryBackoff: time.Millisecond}, zerolog.Nop())
}

func TestReconstruct_AcceptsValidAnswer(t *testing.T) {
	gen := &reconstructtest.MockGenerator{
		Completions: []*reconstruct.Completion{
			reconstructtest.Answer(modelMarkup, ".wrap{display:grid;background:url(img/bg.png)}"),
		},
	}

	out := newReconstructor(gen).Reconstruct(context.Background(), normalized())

	assert.Equal(t, core.MethodReconstructed, out.Method())
	assert.NotContains(t, out.Markup, "<script")
	assert.NotContains(t, out.Markup, "onclick")
	assert.NotContains(t, out.Markup, "<style")
	assert.Contains(t, out.Markup, `src="https://example.com/shop/a.png"`)
	assert.Equal(t, ".wrap{display:grid;background:url(\"https://example.com/shop/img/bg.png\")}\n.extra{padding:0}", out.Styles)
	assert.Equal(t, 1, gen.CallCount())
}

func TestReconstruct_FieldsFallBackIndependently(t *testing.T) {
	t.Run("bad styles keep normalized styles", func(t *testing.T) {
		gen := &reconstructtest.MockGenerator{
			Completions: []*reconstruct.Completion{reconstructtest.Answer(modelMarkup, ".wrap{display:grid")},
		}
		in := normalized()
		out := newReconstructor(gen).Reconstruct(context.Background(), in)

		assert.Equal(t, core.MethodPartial, out.Method())
		assert.Equal(t, core.SourceModel, out.MarkupSource)
		assert.Equal(t, in.Styles+"\n.extra{padding:0}", out.Styles)
	})

	t.Run("dropped images keep normalized markup", func(t *testing.T) {
		lossy := strings.Replace(modelMarkup, `<img src="a.png" alt="a">`, `<span>gone</span>`, 1)
		gen := &reconstructtest.MockGenerator{
			Completions: []*reconstruct.Completion{reconstructtest.Answer(lossy, ".wrap{display:grid}")},
		}
		in := normalized()
		out := newReconstructor(gen).Reconstruct(context.Background(), in)

		assert.Equal(t, core.MethodPartial, out.Method())
		assert.Equal(t, in.Markup, out.Markup)
		assert.Equal(t, ".wrap{display:grid}", out.Styles)
	})

	t.Run("collapsed markup is rejected", func(t *testing.T) {
		gen := &reconstructtest.MockGenerator{
			Completions: []*reconstruct.Completion{reconstructtest.Answer(
				`<html><body><img src="a.png"><img src="b.png"></body></html>`, ".a{}")},
		}
		in := normalized()
		out := newReconstructor(gen).Reconstruct(context.Background(), in)
		assert.Equal(t, in.Markup, out.Markup)
	})
}

func TestReconstruct_TruncatedPromptIsJudgedOnWhatWasSent(t *testing.T) {
	section := func(i int) string {
		return fmt.Sprintf(`<section><h2>Item %d</h2><img src="https://example.com/%d.png" alt="item %d"><p>Description of item %d.</p></section>`, i, i, i, i)
	}
	page := func(n int) string {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html><head><title>Catalog</title></head><body>`)
		for i := 0; i < n; i++ {
			b.WriteString(section(i))
		}
		b.WriteString(`</body></html>`)
		return b.String()
	}

	const limit = 1000
	in := &core.NormalizedContent{Markup: page(40), Styles: "section{margin:0}", FinalURL: "https://example.com/"}
	kept := strings.Count(in.Markup[:limit], "</section>") + 1
	rebuilt := page(kept)
	require.Less(t, len(rebuilt), len(in.Markup)/2)

	gen := &reconstructtest.MockGenerator{
		Completions: []*reconstruct.Completion{reconstructtest.Answer(rebuilt, "section{display:grid}")},
	}
	opts := reconstruct.Options{Limits: reconstruct.Limits{MaxMarkupChars: limit}, RetryBackoff: time.Millisecond}
	out := reconstruct.New(gen, opts, zerolog.Nop()).Reconstruct(context.Background(), in)

	assert.Equal(t, core.MethodReconstructed, out.Method())
	assert.Equal(t, core.SourceModel, out.MarkupSource)
	assert.Equal(t, kept, strings.Count(out.Markup, "<img "))
}

func TestReconstruct_FallbackOnFailure(t *testing.T) {
	overloaded := reconstruct.NewTransientError(errors.New("overloaded"))

	tests := []struct {
		name      string
		gen       *reconstructtest.MockGenerator
		wantCalls int
		wantModel bool
	}{
		{
			name: "transient then success",
			gen: &reconstructtest.MockGenerator{
				Errs:        []error{overloaded},
				Completions: []*reconstruct.Completion{reconstructtest.Answer(modelMarkup, ".a{}")},
			},
			wantCalls: 2,
			wantModel: true,
		},
		{
			name:      "transient twice",
			gen:       &reconstructtest.MockGenerator{Errs: []error{overloaded, overloaded}},
			wantCalls: 2,
		},
		{
			name:      "fatal error is not retried",
			gen:       &reconstructtest.MockGenerator{Errs: []error{errors.New("invalid api key")}},
			wantCalls: 1,
		},
		{
			name: "cut off at token limit",
			gen: &reconstructtest.MockGenerator{Completions: []*reconstruct.Completion{{
				Text: "```html\n" + modelMarkup + "\n```\n```css\n.a{}", StopReason: reconstruct.StopMaxTokens,
			}}},
			wantCalls: 1,
		},
		{
			name: "no fenced blocks",
			gen: &reconstructtest.MockGenerator{Completions: []*reconstruct.Completion{{
				Text: "I cannot help with that.", StopReason: "end_turn",
			}}},
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := normalized()
			out := newReconstructor(tt.gen).Reconstruct(context.Background(), in)

			assert.Equal(t, tt.wantCalls, tt.gen.CallCount())
			if tt.wantModel {
				assert.Equal(t, core.MethodReconstructed, out.Method())
				return
			}
			assert.Equal(t, core.MethodNormalized, out.Method())
			assert.Equal(t, in.Markup, out.Markup)
			assert.Equal(t, in.Styles, out.Styles)
		})
	}
}

func TestReconstruct_TimeoutFallsBackVerbatim(t *testing.T) {
	gen := &reconstructtest.MockGenerator{Block: true}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	in := normalized()
	out := newReconstructor(gen).Reconstruct(ctx, in)

	assert.Equal(t, in.Markup, out.Markup)
	assert.Equal(t, in.Styles, out.Styles)
	assert.Equal(t, core.MethodNormalized, out.Method())
	assert.Equal(t, 1, gen.CallCount())
}

func TestReconstruct_NilGeneratorIsPassthrough(t *testing.T) {
	in := normalized()
	out := reconstruct.New(nil, reconstruct.Options{}, zerolog.Nop()).Reconstruct(context.Background(), in)
	assert.Equal(t, *in, out.NormalizedContent)
	assert.Equal(t, core.MethodNormalized, out.Method())
}

func anthropicServer(t *testing.T, status int, body string, requests *[]map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		if requests != nil {
			raw, _ := io.ReadAll(r.Body)
			var req map[string]any
			_ = json.Unmarshal(raw, &req)
			*requests = append(*requests, req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestAnthropicGenerator_Generate(t *testing.T) {
	var requests []map[string]any
	server := anthropicServer(t, http.StatusOK, `{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5",
		"content": [{"type": "text", "text": "`+"```html\\n<p>x</p>\\n```"+`"}],
		"stop_reason": "end_turn",
		"stop_sequence": null,
		"usage": {"input_tokens": 12, "output_tokens": 34}
	}`, &requests)
	defer server.Close()

	gen := reconstruct.NewAnthropicGenerator(reconstruct.AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "claude-sonnet-4-5",
	}, zerolog.Nop())

	completion, err := gen.Generate(context.Background(), reconstruct.Prompt{System: "sys", User: "hello", MaxTokens: 1000})
	require.NoError(t, err)

	assert.Equal(t, "```html\n<p>x</p>\n```", completion.Text)
	assert.Equal(t, "end_turn", completion.StopReason)
	assert.Equal(t, int64(12), completion.InputTokens)
	assert.Equal(t, int64(34), completion.OutputTokens)

	require.Len(t, requests, 1)
	assert.Equal(t, "claude-sonnet-4-5", requests[0]["model"])
	assert.Equal(t, float64(1000), requests[0]["max_tokens"])
	assert.NotContains(t, requests[0], "temperature")
}

func TestAnthropicGenerator_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		errType       string
		wantTransient bool
	}{
		{name: "overloaded", status: 529, errType: "overloaded_error", wantTransient: true},
		{name: "rate limited", status: http.StatusTooManyRequests, errType: "rate_limit_error", wantTransient: true},
		{name: "server error", status: http.StatusInternalServerError, errType: "api_error", wantTransient: true},
		{name: "bad request", status: http.StatusBadRequest, errType: "invalid_request_error"},
		{name: "unauthorized", status: http.StatusUnauthorized, errType: "authentication_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests []map[string]any
			server := anthropicServer(t, tt.status,
				`{"type":"error","error":{"type":"`+tt.errType+`","message":"nope"}}`, &requests)
			defer server.Close()

			gen := reconstruct.NewAnthropicGenerator(reconstruct.AnthropicConfig{
				APIKey:  "test-key",
				BaseURL: server.URL,
				Model:   "claude-sonnet-4-5",
			}, zerolog.Nop())

			_, err := gen.Generate(context.Background(), reconstruct.Prompt{User: "hi", MaxTokens: 10})
			require.Error(t, err)
			assert.Equal(t, tt.wantTransient, reconstruct.IsTransient(err))
			assert.Len(t, requests, 1, "SDK retries must be disabled")
		})
	}
}

func TestAnthropicGenerator_AttemptTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	gen := reconstruct.NewAnthropicGenerator(reconstruct.AnthropicConfig{
		APIKey:         "test-key",
		BaseURL:        server.URL,
		Model:          "claude-sonnet-4-5",
		RequestTimeout: 30 * time.Millisecond,
	}, zerolog.Nop())

	_, err := gen.Generate(context.Background(), reconstruct.Prompt{User: "hi", MaxTokens: 10})
	require.Error(t, err)
	assert.True(t, reconstruct.IsTransient(err))
}
