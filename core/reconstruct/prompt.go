package reconstruct

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/chunk"
	"github.com/go-shiori/go-readability"
)

const maxSummaryImages = 10

const systemPrompt = `You rebuild captured web pages as clean, static, self-contained HTML and CSS.

Rules:
- Preserve all visible text, every image and the visual layout of the page.
- Keep the class names and ids the stylesheet relies on.
- Do not add scripts, event handlers, iframes or external stylesheets.
- Keep absolute URLs exactly as given.

Answer with exactly two fenced blocks and nothing else:
1. ` + "```html" + ` containing the complete document, from <!DOCTYPE html> to </html>.
2. ` + "```css" + ` containing the complete stylesheet.`

// Limits bounds what is sent to the model.
type Limits struct {
	MaxMarkupChars  int
	MaxStyleChars   int
	MaxOutlineWords int
	MaxTokens       int64
}

// promptStats records how the input was bounded.
type promptStats struct {
	MarkupTruncated bool
	StylesFiltered  bool
	StylesTruncated bool
	OutlineIncluded bool
}

// summary is a short description of the page independent of the markup cut.
type summary struct {
	Title   string
	Site    string
	Excerpt string
	Images  []image
}

type image struct {
	Src string
	Alt string
}

// buildPrompt renders content into a bounded prompt and returns it with the
// markup it carries. The same content and limits always produce the same
// prompt.
func buildPrompt(content *core.NormalizedContent, limits Limits) (Prompt, string, promptStats) {
	var stats promptStats

	markup, cut := truncateUTF8(content.Markup, limits.MaxMarkupChars)
	stats.MarkupTruncated = cut
	styles, filtered, styleCut := boundStyles(content.Styles, content.Markup, limits.MaxStyleChars)
	stats.StylesFiltered, stats.StylesTruncated = filtered, styleCut

	sum := summarize(content)

	var b strings.Builder
	fmt.Fprintf(&b, "Page URL: %s\n", content.FinalURL)
	if sum.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", sum.Title)
	}
	if sum.Site != "" {
		fmt.Fprintf(&b, "Site: %s\n", sum.Site)
	}
	if sum.Excerpt != "" {
		fmt.Fprintf(&b, "Excerpt: %s\n", sum.Excerpt)
	}
	if len(sum.Images) > 0 {
		fmt.Fprintf(&b, "\nImages (first %d):\n", maxSummaryImages)
		for _, img := range sum.Images {
			if img.Alt != "" {
				fmt.Fprintf(&b, "- %s (%s)\n", img.Src, img.Alt)
			} else {
				fmt.Fprintf(&b, "- %s\n", img.Src)
			}
		}
	}

	if cut {
		if outline, ok := outlineOf(content.Markup, limits.MaxOutlineWords); ok {
			stats.OutlineIncluded = true
			b.WriteString("\n## Outline of the full page\n\n")
			b.WriteString(outline)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n## Markup\n")
	if cut {
		fmt.Fprintf(&b, "(truncated to the first %d of %d characters)\n", len(markup), len(content.Markup))
	}
	b.WriteString("```html\n")
	b.WriteString(markup)
	b.WriteString("\n```\n")

	b.WriteString("\n## Styles\n")
	switch {
	case styleCut:
		b.WriteString("(only rules that apply to the markup, truncated)\n")
	case filtered:
		b.WriteString("(only rules that apply to the markup)\n")
	}
	b.WriteString("```css\n")
	b.WriteString(styles)
	b.WriteString("\n```\n")

	return Prompt{
		System:    systemPrompt,
		User:      b.String(),
		MaxTokens: limits.MaxTokens,
	}, markup, stats
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) (string, bool) {
	if n <= 0 || len(s) <= n {
		return s, false
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}

func summarize(content *core.NormalizedContent) summary {
	sum := summary{Title: content.Title}

	if base, err := url.Parse(content.FinalURL); err == nil {
		if article, err := readability.FromReader(strings.NewReader(content.Markup), base); err == nil {
			if article.Title != "" {
				sum.Title = article.Title
			}
			sum.Site = article.SiteName
			sum.Excerpt = strings.Join(strings.Fields(article.Excerpt), " ")
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content.Markup))
	if err != nil {
		return sum
	}
	doc.Find("img[src]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		sum.Images = append(sum.Images, image{
			Src: sel.AttrOr("src", ""),
			Alt: strings.TrimSpace(sel.AttrOr("alt", "")),
		})
		return len(sum.Images) < maxSummaryImages
	})
	return sum
}

// outlineOf converts markup to Markdown and keeps the first maxWords words.
func outlineOf(markup string, maxWords int) (string, bool) {
	md, err := htmltomarkdown.ConvertString(markup)
	if err != nil {
		return "", false
	}
	head, more := chunk.New(maxWords).Head(md)
	if head == "" {
		return "", false
	}
	if more {
		head += "\n…"
	}
	return head, true
}
