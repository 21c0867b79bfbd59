package combine

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func content(markup, styles string) *core.ReconstructedContent {
	return core.Passthrough(&core.NormalizedContent{
		Markup:   markup,
		Styles:   styles,
		FinalURL: "https://example.com/",
		Title:    "T",
		Lang:     "en",
		Warnings: []string{"w"},
	})
}

func TestCombine_Fragment(t *testing.T) {
	res, err := New().Combine(content(`<p>Hello</p>`, `body{color:red}`))
	require.NoError(t, err)

	assert.Equal(t,
		`<!DOCTYPE html><html><head><meta charset="utf-8"/><style>body{color:red}</style></head><body><p>Hello</p></body></html>`,
		res.CombinedHTML)
	assert.Equal(t, `<p>Hello</p>`, res.HTML)
	assert.Equal(t, `body{color:red}`, res.CSS)
	assert.Equal(t, core.MethodNormalized, res.Method)
	assert.Equal(t, "https://example.com/", res.FinalURL)
	assert.Equal(t, "T", res.Title)
	assert.Equal(t, "en", res.Lang)
	assert.Equal(t, []string{"w"}, res.Warnings)
}

func TestCombine_FullDocument(t *testing.T) {
	markup := `<!doctype html><html lang="en"><head><title>T</title>` +
		`<meta http-equiv="Content-Type" content="text/html; charset=iso-8859-1"><meta charset="windows-1252">` +
		`<meta name="viewport" content="width=device-width"></head><body><h1>Hi</h1></body></html>`
	css := ".a{content:\"<b>\"}\n.b{background:url(\"https://example.com/x.png\")}"

	res, err := New().Combine(content(markup, css))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.CombinedHTML, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"/><title>T</title>`))
	assert.Equal(t, 1, strings.Count(res.CombinedHTML, "charset"))
	assert.Contains(t, res.CombinedHTML, `name="viewport"`)

	// The combined document parses standalone and carries the whole style document.
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.CombinedHTML))
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Find("head > style").Length())
	assert.Equal(t, css, doc.Find("head > style").Text())
	assert.Equal(t, "Hi", doc.Find("body h1").Text())
}

func TestCombine_EmptyStyles(t *testing.T) {
	res, err := New().Combine(content(`<html><head></head><body>x</body></html>`, ""))
	require.NoError(t, err)
	assert.NotContains(t, res.CombinedHTML, "<style")
	assert.Contains(t, res.CombinedHTML, `<meta charset="utf-8"/>`)
}

func TestCombine_StyleBreakoutIsAnInvariantViolation(t *testing.T) {
	_, err := New().Combine(content(`<p>x</p>`, `a{}</STYLE><script>alert(1)</script>`))

	var violation *core.CombinerInvariantViolation
	require.True(t, errors.As(err, &violation))
	assert.Contains(t, violation.Reason, "</style")
}

func TestCombine_Deterministic(t *testing.T) {
	c := content(`<div class="a">x</div>`, `.a{color:red}`)
	first, err := New().Combine(c)
	require.NoError(t, err)
	second, err := New().Combine(c)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCombine_KeepsMethod(t *testing.T) {
	c := content(`<p>x</p>`, `p{}`)
	c.MarkupSource = core.SourceModel
	res, err := New().Combine(c)
	require.NoError(t, err)
	assert.Equal(t, core.MethodPartial, res.Method)
}
