// Package normalize implements the Normalizer interface.
// It converts a fetched page into sanitized, script-free markup and a single
// style document, which serve as the canonical input for reconstruction and
// the fallback for everything downstream.
package normalize

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/extract"
)

const emptyDocument = "<!DOCTYPE html><html><head></head><body></body></html>"

// PageNormalizer sanitizes markup and merges style sheets.
type PageNormalizer struct {
	sanitizer *extract.Sanitizer
}

// New creates a PageNormalizer.
func New() *PageNormalizer {
	return &PageNormalizer{sanitizer: extract.New()}
}

// Normalize sanitizes the page markup and concatenates its style sheets.
// Only a nil page is an error; unparseable parts are dropped with a warning.
func (n *PageNormalizer) Normalize(page *core.FetchedPage) (*core.NormalizedContent, error) {
	if page == nil {
		return nil, errors.New("normalize: nil page")
	}

	finalURL := page.FinalURL
	if finalURL == "" {
		finalURL = page.URL
	}
	base, err := url.Parse(finalURL)
	if err != nil {
		base = nil
	}

	warnings := append([]string(nil), page.Warnings...)

	markup := emptyDocument
	var title, lang string
	res, err := n.sanitizer.Sanitize(page.Markup, base)
	if err != nil {
		warnings = append(warnings, fmt.Sprintf("markup dropped: %v", err))
	} else {
		markup = res.Markup
		title, lang = res.Title, res.Lang
		warnings = append(warnings, res.Warnings...)
	}

	styles, styleWarnings := MergeStyles(page.Styles, base)
	warnings = append(warnings, styleWarnings...)

	return &core.NormalizedContent{
		Markup:   markup,
		Styles:   styles,
		FinalURL: finalURL,
		Title:    title,
		Lang:     lang,
		Warnings: warnings,
	}, nil
}
