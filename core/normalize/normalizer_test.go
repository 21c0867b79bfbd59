package normalize

import (
	"net/url"
	"strings"
	"testing"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_ScriptAndInlineStyle(t *testing.T) {
	page := &core.FetchedPage{
		URL:      "https://example.com",
		FinalURL: "https://example.com/",
		Status:   200,
		Markup: `<!DOCTYPE html><html><head><style>body{color:red}</style></head>` +
			`<body><script>alert(1)</script><p>Hello</p></body></html>`,
		Styles: []core.Stylesheet{{Text: "body{color:red}"}},
	}

	got, err := New().Normalize(page)
	require.NoError(t, err)

	assert.NotContains(t, got.Markup, "<script")
	assert.NotContains(t, got.Markup, "alert(1)")
	assert.Contains(t, got.Markup, "<p>Hello</p>")
	assert.Contains(t, got.Styles, "body{color:red}")
	assert.Equal(t, 1, strings.Count(got.Styles, "body{color:red}"), "inline style must not be duplicated")
	assert.Equal(t, "https://example.com/", got.FinalURL)
}

func TestNormalize_Deterministic(t *testing.T) {
	page := &core.FetchedPage{
		URL:      "https://example.com",
		FinalURL: "https://example.com/blog/",
		Markup: `<html lang="en"><head><title>Blog</title></head><body>` +
			`<img src="a.png" srcset="a.png 1x, b.png 2x"><a href="/x" onclick="t()">x</a>` +
			`<div style="background:url(bg.png)"></div></body></html>`,
		Styles: []core.Stylesheet{
			{Href: "https://cdn.example.com/site.css", Text: `.hero{background:url(img/hero.jpg)}`},
			{Text: `.a{color:blue}`, Media: "print"},
		},
		Warnings: []string{"page did not reach network idle before the settle timeout"},
	}

	first, err := New().Normalize(page)
	require.NoError(t, err)
	second, err := New().Normalize(page)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Blog", first.Title)
	assert.Equal(t, "en", first.Lang)
	assert.Equal(t, page.Warnings, first.Warnings[:1])
}

func TestNormalize_StyleOrderAndResolution(t *testing.T) {
	page := &core.FetchedPage{
		URL:      "https://example.com",
		FinalURL: "https://example.com/shop/item",
		Markup:   `<html><body><p>x</p></body></html>`,
		Styles: []core.Stylesheet{
			{Href: "https://cdn.example.com/css/base.css", Text: `@charset "utf-8";.one{background:url(../i/one.png)}`},
			{Text: `.two{background:url(two.png)}`},
			{Href: "/css/print.css", Media: "print", Text: `.three{display:none}`},
			{Href: "https://cdn.example.com/all.css", Media: "all", Text: `.four{}`},
			{Href: "https://cdn.other.com/x.css", Media: "screen", Text: `@import url(fonts.css);.five{color:red}`},
		},
	}

	got, err := New().Normalize(page)
	require.NoError(t, err)

	want := strings.Join([]string{
		`.one{background:url("https://cdn.example.com/i/one.png")}`,
		`.two{background:url("https://example.com/shop/two.png")}`,
		"@media print {\n.three{display:none}\n}",
		`.four{}`,
		"@media screen {\n.five{color:red}\n}",
	}, "\n")
	assert.Equal(t, want, got.Styles)
	assert.NotContains(t, got.Styles, "@charset")
	assert.NotContains(t, got.Styles, "@import")
	assert.Contains(t, got.Warnings, "dropped 1 unexpanded @import(s) in stylesheet https://cdn.other.com/x.css")
}

func TestNormalize_MalformedStyles(t *testing.T) {
	page := &core.FetchedPage{
		FinalURL: "https://example.com/",
		Markup:   `<p>x`,
		Styles: []core.Stylesheet{
			{Text: `.ok{color:red}`},
			{Text: `.broken{color:red}}}`},
			{Text: `.open{color:blue`},
			{Text: `.evil::after{content:"</style><script>alert(1)</script>"}`},
		},
	}

	got, err := New().Normalize(page)
	require.NoError(t, err)

	assert.Contains(t, got.Styles, ".ok{color:red}")
	assert.NotContains(t, got.Styles, ".broken")
	assert.Contains(t, got.Styles, ".open{color:blue}")
	assert.NotContains(t, strings.ToLower(got.Styles), "</style")
	assert.Contains(t, got.Styles, `<\/style>`)
	assert.Len(t, got.Warnings, 2)
	assert.Contains(t, got.Markup, "<body><p>x</p></body>")
}

func TestNormalize_NilPage(t *testing.T) {
	_, err := New().Normalize(nil)
	assert.Error(t, err)
}

func TestNeutralize(t *testing.T) {
	assert.Equal(t, `a{content:"<\/STYLE>"}`, Neutralize(`a{content:"</STYLE>"}`))
	assert.Equal(t, "a{}", Neutralize("a{}"))
}

func TestMergeStyles_RelativeHrefResolvesAgainstPage(t *testing.T) {
	page, _ := url.Parse("https://example.com/a/b")
	got, warnings := MergeStyles([]core.Stylesheet{{Href: "css/x.css", Text: ".x{background:url(y.png)}"}}, page)
	assert.Empty(t, warnings)
	assert.Equal(t, `.x{background:url("https://example.com/a/css/y.png")}`, got)
}
