// Package combine implements the Combiner interface.
// It inlines the style document into the markup, producing one
// self-contained HTML document that renders without any other file.
package combine

import (
	"fmt"
	"strings"

	"github.com/gaurav-prasanna/pageclone/core"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DocumentCombiner builds the combined document with golang.org/x/net/html.
type DocumentCombiner struct{}

// New creates a DocumentCombiner.
func New() *DocumentCombiner {
	return &DocumentCombiner{}
}

// Combine returns markup and styles as-is together with the combined
// document. It fails only with *core.CombinerInvariantViolation.
func (c *DocumentCombiner) Combine(content *core.ReconstructedContent) (*core.CloneResult, error) {
	if content == nil {
		return nil, &core.CombinerInvariantViolation{Reason: "no content"}
	}
	if strings.Contains(strings.ToLower(content.Styles), "</style") {
		return nil, &core.CombinerInvariantViolation{Reason: "style document contains </style"}
	}

	doc, err := html.Parse(strings.NewReader(content.Markup))
	if err != nil {
		return nil, &core.CombinerInvariantViolation{Reason: fmt.Sprintf("markup does not parse: %v", err)}
	}
	head := find(doc, atom.Head)
	if head == nil {
		return nil, &core.CombinerInvariantViolation{Reason: "parsed document has no head"}
	}

	ensureDoctype(doc)
	ensureCharset(head)
	if content.Styles != "" {
		style := element(atom.Style)
		style.AppendChild(&html.Node{Type: html.TextNode, Data: content.Styles})
		head.AppendChild(style)
	}

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return nil, &core.CombinerInvariantViolation{Reason: fmt.Sprintf("rendering document: %v", err)}
	}

	return &core.CloneResult{
		HTML:         content.Markup,
		CSS:          content.Styles,
		CombinedHTML: b.String(),
		Method:       content.Method(),
		FinalURL:     content.FinalURL,
		Title:        content.Title,
		Lang:         content.Lang,
		Warnings:     content.Warnings,
	}, nil
}

func ensureDoctype(doc *html.Node) {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == html.DoctypeNode {
			n.Data = "html"
			n.Attr = nil
			return
		}
	}
	doc.InsertBefore(&html.Node{Type: html.DoctypeNode, Data: "html"}, doc.FirstChild)
}

// ensureCharset makes <meta charset="utf-8"> the first child of head. The
// markup is always serialized as UTF-8, so other charset declarations are
// removed.
func ensureCharset(head *html.Node) {
	for n := head.FirstChild; n != nil; {
		next := n.NextSibling
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta && declaresCharset(n) {
			head.RemoveChild(n)
		}
		n = next
	}
	meta := element(atom.Meta)
	meta.Attr = []html.Attribute{{Key: "charset", Val: "utf-8"}}
	head.InsertBefore(meta, head.FirstChild)
}

func declaresCharset(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "charset" || (a.Key == "http-equiv" && strings.EqualFold(a.Val, "content-type")) {
			return true
		}
	}
	return false
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func find(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, a); found != nil {
			return found
		}
	}
	return nil
}
