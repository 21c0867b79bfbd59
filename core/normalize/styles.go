package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/extract"
)

var (
	charsetRule = regexp.MustCompile(`(?i)@charset\s+("[^"]*"|'[^']*')\s*;`)
	styleClose  = regexp.MustCompile(`(?i)</style`)
)

// MergeStyles resolves and concatenates sheets in order into one style
// document. Sheets with a media list are wrapped in @media. @import
// statements are expected to be expanded already; any left are dropped. Relative
// references resolve against the sheet's own URL, or pageURL for inline
// sheets.
func MergeStyles(sheets []core.Stylesheet, pageURL *url.URL) (string, []string) {
	var fragments, warnings []string
	for i, sheet := range sheets {
		base := pageURL
		if sheet.Href != "" {
			u, err := url.Parse(sheet.Href)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("dropped stylesheet %d: bad href %q", i, sheet.Href))
				continue
			}
			if pageURL != nil {
				u = pageURL.ResolveReference(u)
			}
			base = u
		}

		text := charsetRule.ReplaceAllString(sheet.Text, "")
		text = extract.RewriteURLs(text, base)

		switch depth := extract.Depth(text); {
		case depth < 0:
			warnings = append(warnings, fmt.Sprintf("dropped stylesheet %s: unbalanced braces", sheetName(i, sheet)))
			continue
		case depth > 0:
			text += strings.Repeat("}", depth)
			warnings = append(warnings, fmt.Sprintf("closed %d unterminated block(s) in stylesheet %s", depth, sheetName(i, sheet)))
		}

		text, imports := dropImports(text)
		if imports > 0 {
			warnings = append(warnings, fmt.Sprintf("dropped %d unexpanded @import(s) in stylesheet %s", imports, sheetName(i, sheet)))
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if media := strings.TrimSpace(sheet.Media); media != "" && !strings.EqualFold(media, "all") {
			text = "@media " + media + " {\n" + text + "\n}"
		}
		fragments = append(fragments, text)
	}
	return Neutralize(strings.Join(fragments, "\n")), warnings
}

// dropImports removes the top-level @import statements left in css. The
// merged document has no external sheets to load them from.
func dropImports(css string) (string, int) {
	if !strings.Contains(strings.ToLower(css), "@import") {
		return css, 0
	}
	rules, rest := extract.SplitRules(css)
	var b strings.Builder
	dropped := 0
	for _, rule := range append(rules, rest) {
		if _, _, ok := extract.ParseImport(rule); ok {
			dropped++
			continue
		}
		b.WriteString(rule)
	}
	return b.String(), dropped
}

// Neutralize rewrites every </style sequence so the text can sit inside a
// <style> element.
func Neutralize(css string) string {
	return styleClose.ReplaceAllStringFunc(css, func(m string) string {
		return `<\/` + m[2:]
	})
}

func sheetName(i int, sheet core.Stylesheet) string {
	if sheet.Href != "" {
		return sheet.Href
	}
	return fmt.Sprintf("#%d (inline)", i)
}
