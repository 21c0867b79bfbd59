// Package extract implements the markup sanitizer shared by normalization
// and by the acceptance of reconstructed markup.
// It turns a rendered page into static markup by:
//  1. Removing active and tracking elements (scripts, embeds, pixels, hints)
//  2. Stripping event handlers and neutralizing script URLs and form actions
//  3. Resolving every relative reference against the page URL
package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gaurav-prasanna/pageclone/core/urls"
	"golang.org/x/net/html"
)

// activeSelectors are elements removed outright. Their content is either
// executable, already captured elsewhere, or meaningless in a static copy.
var activeSelectors = []string{
	"script", "noscript", "template",
	"object", "embed", "applet",
	"base", "portal",
}

// droppedLinkRels are <link rel> tokens whose elements are removed.
// Stylesheets are already part of the style document.
var droppedLinkRels = map[string]bool{
	"stylesheet": true, "preload": true, "prefetch": true, "modulepreload": true,
	"preconnect": true, "dns-prefetch": true, "prerender": true, "import": true,
	"manifest": true, "serviceworker": true,
}

// urlAttrs are attributes holding a single URL.
var urlAttrs = map[string]bool{
	"href": true, "src": true, "poster": true, "data": true,
	"background": true, "cite": true, "xlink:href": true,
}

// trackerElements are the elements checked against the tracker host list.
const trackerElements = "img, iframe, link, source, frame, a[ping]"

// Result is a sanitized document.
type Result struct {
	Markup string
	// EmbeddedStyles holds the text of removed <style> elements in order.
	EmbeddedStyles []string
	Title          string
	Lang           string
	Warnings       []string
}

// Sanitizer strips active content from HTML documents.
type Sanitizer struct{}

// New creates a Sanitizer.
func New() *Sanitizer {
	return &Sanitizer{}
}

// Sanitize parses markup as a document and returns it without scripts,
// handlers or tracking, with references resolved against base. The result
// depends only on its inputs.
func (s *Sanitizer) Sanitize(markup string, base *url.URL) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	res := &Result{}

	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		if text := sel.Text(); strings.TrimSpace(text) != "" {
			res.EmbeddedStyles = append(res.EmbeddedStyles, text)
		}
	})
	doc.Find("style").Remove()

	for _, sel := range activeSelectors {
		doc.Find(sel).Remove()
	}
	doc.Find("link").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		for _, rel := range strings.Fields(strings.ToLower(sel.AttrOr("rel", ""))) {
			if droppedLinkRels[rel] {
				return true
			}
		}
		return false
	}).Remove()
	doc.Find("meta[http-equiv]").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return strings.EqualFold(strings.TrimSpace(sel.AttrOr("http-equiv", "")), "refresh")
	}).Remove()

	trackers := doc.Find(trackerElements).FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return urls.IsTracker(sel.AttrOr("src", "")) || urls.IsTracker(sel.AttrOr("href", "")) || isPixel(sel)
	})
	if n := trackers.Length(); n > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("removed %d tracking element(s)", n))
		trackers.Remove()
	}

	doc.Find("iframe, frame").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		src, ok := urls.Resolve(base, sel.AttrOr("src", ""))
		return src != "" && (!ok || !urls.IsHTTP(src))
	}).Remove()
	doc.Find("animate, set").FilterFunction(func(_ int, sel *goquery.Selection) bool {
		return animatesLink(sel.Get(0))
	}).Remove()

	dropped := 0
	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		dropped += cleanAttributes(sel.Get(0), base)
	})
	if dropped > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("dropped %d unresolvable reference(s)", dropped))
	}

	res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	res.Lang = strings.TrimSpace(doc.Find("html").First().AttrOr("lang", ""))

	out, err := doc.Html()
	if err != nil {
		return nil, fmt.Errorf("serializing document: %w", err)
	}
	res.Markup = out
	return res, nil
}

// isPixel reports whether an image is a 1x1 (or smaller) beacon.
func isPixel(sel *goquery.Selection) bool {
	if goquery.NodeName(sel) != "img" {
		return false
	}
	w, wok := sel.Attr("width")
	h, hok := sel.Attr("height")
	if !wok || !hok {
		return false
	}
	tiny := func(v string) bool {
		v = strings.TrimSuffix(strings.TrimSpace(v), "px")
		return v == "0" || v == "1"
	}
	return tiny(w) && tiny(h)
}

// cleanAttributes rewrites the attributes of n in place and returns the
// number of references that were dropped.
func cleanAttributes(n *html.Node, base *url.URL) int {
	dropped := 0
	kept := n.Attr[:0]
	for _, attr := range n.Attr {
		key := strings.ToLower(attr.Key)
		switch {
		case strings.HasPrefix(key, "on"), key == "srcdoc", key == "ping":
			continue
		case key == "action" || key == "formaction":
			attr.Val = "#"
		case key == "href" && isScriptURL(attr.Val):
			attr.Val = "#"
		case urlAttrs[key]:
			resolved, ok := urls.Resolve(base, attr.Val)
			if !ok {
				dropped++
				continue
			}
			attr.Val = resolved
		case key == "srcset" || key == "imagesrcset":
			attr.Val = urls.ResolveSrcset(base, attr.Val)
			if attr.Val == "" {
				continue
			}
		case key == "style":
			attr.Val = RewriteURLs(attr.Val, base)
		}
		kept = append(kept, attr)
	}
	n.Attr = kept
	return dropped
}

// animatesLink reports whether an SVG animation targets a link attribute.
func animatesLink(n *html.Node) bool {
	for _, attr := range n.Attr {
		if !strings.EqualFold(attr.Key, "attributeName") {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(attr.Val)) {
		case "href", "xlink:href":
			return true
		}
	}
	return false
}

func isScriptURL(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:")
}
