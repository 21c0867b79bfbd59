// Package render provides output renderers for clone results.
// This file implements the HTML renderer, which writes the combined document.
package render

import (
	"github.com/gaurav-prasanna/pageclone/core"
)

// HTMLRenderer writes the self-contained combined document as-is.
type HTMLRenderer struct{}

// NewHTMLRenderer creates an HTMLRenderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{}
}

// Render returns the combined document.
func (r *HTMLRenderer) Render(result *core.CloneResult, meta core.PageMetadata) ([]byte, error) {
	return []byte(result.CombinedHTML), nil
}

// Extension returns the file extension for HTML output.
func (r *HTMLRenderer) Extension() string {
	return ".html"
}
