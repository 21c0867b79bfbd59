package reconstruct

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/stretchr/testify/assert"
)

func TestTruncateUTF8(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		n       int
		want    string
		wantCut bool
	}{
		{name: "fits", in: "hello", n: 10, want: "hello"},
		{name: "exact", in: "hello", n: 5, want: "hello"},
		{name: "ascii cut", in: "hello", n: 3, want: "hel", wantCut: true},
		{name: "rune boundary", in: "héllo", n: 2, want: "h", wantCut: true},
		{name: "no limit", in: "hello", n: 0, want: "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cut := truncateUTF8(tt.in, tt.n)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCut, cut)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestBuildPrompt_SmallPageIsSentWhole(t *testing.T) {
	content := &core.NormalizedContent{
		Markup:   `<html><head><title>Small</title></head><body><img src="https://example.com/a.png" alt="logo"><p>hi</p></body></html>`,
		Styles:   "p{color:red}",
		FinalURL: "https://example.com/",
		Title:    "Small",
	}
	prompt, sent, stats := buildPrompt(content, Limits{MaxMarkupChars: 10_000, MaxStyleChars: 10_000, MaxOutlineWords: 100, MaxTokens: 500})

	assert.Equal(t, promptStats{}, stats)
	assert.Equal(t, content.Markup, sent)
	assert.Equal(t, int64(500), prompt.MaxTokens)
	assert.Contains(t, prompt.System, "```html")
	assert.Contains(t, prompt.User, "Page URL: https://example.com/")
	assert.Contains(t, prompt.User, "- https://example.com/a.png (logo)")
	assert.Contains(t, prompt.User, "```html\n"+content.Markup+"\n```")
	assert.Contains(t, prompt.User, "```css\np{color:red}\n```")
	assert.NotContains(t, prompt.User, "truncated")
	assert.NotContains(t, prompt.User, "Outline")
}

func TestBuildPrompt_LargePageIsBounded(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 30; i++ {
		fmt.Fprintf(&body, `<section class="s%d"><h2>Section %d</h2><img src="https://example.com/%d.png"><p>Paragraph text number %d.</p></section>`, i, i, i, i)
	}
	markup := "<html><head><title>Big</title></head><body>" + body.String() + "</body></html>"

	var css strings.Builder
	css.WriteString(".s0{color:red}")
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&css, ".unused-%d{margin:%dpx}", i, i)
	}
	css.WriteString(".s1{color:blue}")

	content := &core.NormalizedContent{Markup: markup, Styles: css.String(), FinalURL: "https://example.com/"}
	limits := Limits{MaxMarkupChars: 500, MaxStyleChars: 100, MaxOutlineWords: 20, MaxTokens: 100}

	first, sent, stats := buildPrompt(content, limits)
	again, _, _ := buildPrompt(content, limits)
	assert.Equal(t, first, again, "prompt must be deterministic")

	assert.True(t, stats.MarkupTruncated)
	assert.True(t, stats.StylesFiltered)
	assert.False(t, stats.StylesTruncated)
	assert.True(t, stats.OutlineIncluded)

	assert.Len(t, sent, 500)
	assert.Equal(t, markup[:500], sent)
	assert.Contains(t, first.User, "```html\n"+sent+"\n```")
	assert.Contains(t, first.User, "(truncated to the first 500 of")
	assert.Contains(t, first.User, "```css\n.s0{color:red}.s1{color:blue}\n```")
	assert.NotContains(t, first.User, "unused-")
	assert.Contains(t, first.User, "## Outline of the full page")
	assert.Equal(t, maxSummaryImages, strings.Count(first.User, "\n- https://example.com/"))
}

func TestBoundStyles(t *testing.T) {
	markup := `<html><body><div class="card"><a href="#">x</a></div></body></html>`
	css := `.card{a:b}.missing{c:d}@media (max-width:600px){.card a{e:f}.gone{g:h}}` +
		`@media print{.gone{i:j}}@font-face{font-family:x}a:hover{k:l}.card::before{m:n}`

	out, filtered, truncated := boundStyles(css, markup, 10)
	assert.True(t, filtered)
	assert.True(t, truncated)
	assert.Equal(t, ".card{a:b}", out)

	out, _, truncated = boundStyles(css, markup, 1000)
	assert.Equal(t, css, out, "styles under the ceiling are sent whole")
	assert.False(t, truncated)

	out, _, _ = boundStyles(css, markup, len(css)-1)
	assert.Equal(t, `.card{a:b}@media (max-width:600px){.card a{e:f}}@font-face{font-family:x}a:hover{k:l}.card::before{m:n}`, out)
}
