package reconstruct

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gaurav-prasanna/pageclone/core/extract"
	"golang.org/x/net/html"
)

// validateMarkup checks that candidate can stand in for original.
func validateMarkup(candidate, original string, minRetain float64) error {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return errors.New("markup is empty")
	}
	if strings.LastIndexByte(trimmed, '<') > strings.LastIndexByte(trimmed, '>') {
		return errors.New("markup ends inside a tag")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(candidate))
	if err != nil {
		return fmt.Errorf("markup does not parse: %w", err)
	}
	if !hasContent(doc.Find("body").Nodes) {
		return errors.New("markup has no body content")
	}

	if want, got := countImages(original), doc.Find("img").Length(); got < want {
		return fmt.Errorf("markup keeps %d of %d images", got, want)
	}
	if minRetain > 0 && float64(len(candidate)) < minRetain*float64(len(original)) {
		return fmt.Errorf("markup shrank to %d%% of the original", len(candidate)*100/max(len(original), 1))
	}
	return nil
}

// validateStyles checks that css can be inlined in a <style> element.
func validateStyles(css string) error {
	if strings.TrimSpace(css) == "" {
		return errors.New("stylesheet is empty")
	}
	if !extract.Balanced(css) {
		return errors.New("stylesheet has unbalanced blocks")
	}
	if strings.Contains(strings.ToLower(css), "</style") {
		return errors.New("stylesheet contains </style")
	}
	return nil
}

func countImages(markup string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return 0
	}
	return doc.Find("img").Length()
}

// hasContent reports whether any of the nodes has an element child or
// non-blank text.
func hasContent(nodes []*html.Node) bool {
	for _, n := range nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.ElementNode:
				return true
			case html.TextNode:
				if strings.TrimSpace(c.Data) != "" {
					return true
				}
			}
		}
	}
	return false
}
