// Package render: JSON renderer.
// Builds a structured JSON document from a clone result: the three outputs,
// page metadata and a summary of the cloned page's structure (headings,
// links, images and style rules).
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gaurav-prasanna/pageclone/core"
	"github.com/gaurav-prasanna/pageclone/core/extract"
)

// Document is the JSON output.
type Document struct {
	Metadata     core.PageMetadata `json:"metadata"`
	Method       string            `json:"method"`
	HTML         string            `json:"html"`
	CSS          string            `json:"css"`
	CombinedHTML string            `json:"combinedHtml"`
	Warnings     []string          `json:"warnings,omitempty"`
	Structure    Structure         `json:"structure"`
}

// Structure summarizes the cloned markup and styles.
type Structure struct {
	Headings   []Heading `json:"headings"`
	Links      []Link    `json:"links"`
	Images     []Image   `json:"images"`
	StyleRules int       `json:"style_rules"`
}

// Heading is a heading element.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// Link is an anchor with a target.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Image is an img element.
type Image struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// JSONRenderer produces structured JSON output.
type JSONRenderer struct{}

// NewJSONRenderer creates a JSONRenderer.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{}
}

// Render converts a result and its metadata into the JSON document.
func (r *JSONRenderer) Render(result *core.CloneResult, meta core.PageMetadata) ([]byte, error) {
	structure, err := describe(result)
	if err != nil {
		return nil, fmt.Errorf("reading clone structure: %w", err)
	}

	doc := Document{
		Metadata:     meta,
		Method:       result.Method,
		HTML:         result.HTML,
		CSS:          result.CSS,
		CombinedHTML: result.CombinedHTML,
		Warnings:     result.Warnings,
		Structure:    structure,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON: %w", err)
	}
	return data, nil
}

// Extension returns the file extension for JSON output.
func (r *JSONRenderer) Extension() string {
	return ".json"
}

func describe(result *core.CloneResult) (Structure, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(result.HTML))
	if err != nil {
		return Structure{}, err
	}

	s := Structure{
		Headings: []Heading{},
		Links:    []Link{},
		Images:   []Image{},
	}
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, h *goquery.Selection) {
		s.Headings = append(s.Headings, Heading{
			Level: int(goquery.NodeName(h)[1] - '0'),
			Text:  collapse(h.Text()),
		})
	})
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "#" {
			return
		}
		s.Links = append(s.Links, Link{Text: collapse(a.Text()), Href: href})
	})
	doc.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		alt, _ := img.Attr("alt")
		s.Images = append(s.Images, Image{Src: src, Alt: alt})
	})

	rules, _ := extract.SplitRules(result.CSS)
	s.StyleRules = len(rules)
	return s, nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
