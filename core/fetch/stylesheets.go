package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/browser"
	"github.com/gaurav-prasanna/pageclone/core/extract"
	"github.com/gaurav-prasanna/pageclone/core/urls"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxStylesheetBytes    = 2 << 20
	defaultStylesheetConcurrency = 4
	maxImportDepth               = 4
)

// StylesheetLoader turns browser sheets into core stylesheets, downloading
// the ones whose rules were hidden from script.
type StylesheetLoader struct {
	client       *http.Client
	maxBytes     int64
	concurrency  int
	userAgent    string
	allowPrivate bool
}

// NewStylesheetLoader creates a StylesheetLoader. Zero limits take defaults.
func NewStylesheetLoader(client *http.Client, maxBytes int64, concurrency int, userAgent string, allowPrivate bool) *StylesheetLoader {
	if client == nil {
		client = http.DefaultClient
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxStylesheetBytes
	}
	if concurrency <= 0 {
		concurrency = defaultStylesheetConcurrency
	}
	return &StylesheetLoader{
		client:       client,
		maxBytes:     maxBytes,
		concurrency:  concurrency,
		userAgent:    userAgent,
		allowPrivate: allowPrivate,
	}
}

// Resolve returns the sheets' text in their original order. Sheets whose
// rules were hidden are downloaded, and every @import is replaced by the
// text of the sheet it names. Relative references resolve against the
// sheet's URL, or pageURL for inline sheets. Sheets and imports that cannot
// be recovered are dropped and described in the returned warnings.
func (l *StylesheetLoader) Resolve(ctx context.Context, pageURL string, sheets []browser.Sheet) ([]core.Stylesheet, []string) {
	page, _ := url.Parse(pageURL)
	texts := make([]string, len(sheets))
	notes := make([][]string, len(sheets))
	failed := make([]bool, len(sheets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)

	for i, sheet := range sheets {
		if !sheet.Readable && sheet.Href == "" {
			notes[i] = []string{"dropped an unreadable inline stylesheet"}
			failed[i] = true
			continue
		}
		if sheet.Readable && !hasImport(sheet.Text) {
			texts[i] = sheet.Text
			continue
		}
		g.Go(func() error {
			base := sheetBase(page, sheet.Href)
			text := sheet.Text
			if !sheet.Readable {
				var err error
				if text, err = l.download(gctx, base.String()); err != nil {
					notes[i] = []string{fmt.Sprintf("dropped stylesheet %s: %v", sheet.Href, err)}
					failed[i] = true
					return nil
				}
			}
			seen := map[string]bool{}
			if base != nil {
				seen[base.String()] = true
			}
			texts[i], notes[i] = l.expandImports(gctx, text, base, 0, seen)
			return nil
		})
	}
	_ = g.Wait()

	var styles []core.Stylesheet
	var warnings []string
	for i, sheet := range sheets {
		warnings = append(warnings, notes[i]...)
		if failed[i] || strings.TrimSpace(texts[i]) == "" {
			continue
		}
		styles = append(styles, core.Stylesheet{Href: sheet.Href, Media: sheet.Media, Text: texts[i]})
	}
	return styles, warnings
}

// expandImports replaces each top-level @import in css with the imported
// sheet, wrapped in the at-rules of its conditions. References inside an
// imported sheet are resolved against its own URL. seen holds the chain of
// sheets being expanded.
func (l *StylesheetLoader) expandImports(ctx context.Context, css string, base *url.URL, depth int, seen map[string]bool) (string, []string) {
	if !hasImport(css) {
		return css, nil
	}

	var b strings.Builder
	var warnings []string
	rules, rest := extract.SplitRules(css)
	for _, rule := range rules {
		ref, conditions, ok := extract.ParseImport(rule)
		if !ok {
			b.WriteString(rule)
			continue
		}

		href, ok := urls.Resolve(base, ref)
		switch {
		case !ok || !urls.IsHTTP(href):
			warnings = append(warnings, fmt.Sprintf("dropped import %q: unusable reference", ref))
			continue
		case seen[href]:
			warnings = append(warnings, fmt.Sprintf("dropped import %s: import cycle", href))
			continue
		case depth >= maxImportDepth:
			warnings = append(warnings, fmt.Sprintf("dropped import %s: nested more than %d deep", href, maxImportDepth))
			continue
		}

		text, err := l.download(ctx, href)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("dropped import %s: %v", href, err))
			continue
		}
		importURL, _ := url.Parse(href)
		chain := make(map[string]bool, len(seen)+1)
		for k := range seen {
			chain[k] = true
		}
		chain[href] = true

		text, nested := l.expandImports(ctx, text, importURL, depth+1, chain)
		warnings = append(warnings, nested...)
		text = extract.RewriteURLs(strings.TrimSpace(text), importURL)
		b.WriteString("\n")
		b.WriteString(wrapConditions(text, conditions))
		b.WriteString("\n")
	}
	b.WriteString(rest)
	return b.String(), warnings
}

// wrapConditions nests css in the @layer, @supports and @media blocks named
// by an import's conditions.
func wrapConditions(css, conditions string) string {
	var open []string
	rest := strings.TrimSpace(conditions)

	if name, after, ok := takeFunction(rest, "layer"); ok {
		open = append(open, "@layer "+strings.TrimSpace(name))
		rest = after
	} else if lower := strings.ToLower(rest); lower == "layer" || strings.HasPrefix(lower, "layer ") {
		open = append(open, "@layer")
		rest = strings.TrimSpace(rest[len("layer"):])
	}
	if cond, after, ok := takeFunction(rest, "supports"); ok {
		open = append(open, "@supports ("+strings.TrimSpace(cond)+")")
		rest = after
	}
	if rest != "" && !strings.EqualFold(rest, "all") {
		open = append(open, "@media "+rest)
	}

	for i := len(open) - 1; i >= 0; i-- {
		css = open[i] + " {\n" + css + "\n}"
	}
	return css
}

// takeFunction reads a leading name(...) from s and returns its arguments
// and the trimmed remainder.
func takeFunction(s, name string) (args, rest string, ok bool) {
	if len(s) <= len(name) || !strings.EqualFold(s[:len(name)], name) || s[len(name)] != '(' {
		return "", s, false
	}
	depth := 0
	for i := len(name); i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[len(name)+1 : i], strings.TrimSpace(s[i+1:]), true
			}
		}
	}
	return "", s, false
}

func hasImport(css string) bool {
	return strings.Contains(strings.ToLower(css), "@import")
}

// sheetBase is the URL relative references in a sheet resolve against.
func sheetBase(page *url.URL, href string) *url.URL {
	if href == "" {
		return page
	}
	u, err := url.Parse(href)
	if err != nil {
		return page
	}
	if page != nil {
		u = page.ResolveReference(u)
	}
	return u
}

func (l *StylesheetLoader) download(ctx context.Context, href string) (string, error) {
	if _, err := urls.ValidateTarget(href, l.allowPrivate); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/css,*/*;q=0.1")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mediaType == "text/html" {
		return "", fmt.Errorf("unexpected content type %s", mediaType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	if int64(len(body)) > l.maxBytes {
		return "", fmt.Errorf("larger than %d bytes", l.maxBytes)
	}
	return string(body), nil
}
