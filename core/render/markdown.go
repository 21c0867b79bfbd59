package render

import (
	"bytes"
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gaurav-prasanna/pageclone/core"
	"gopkg.in/yaml.v3"
)

// frontMatter is the YAML header of the Markdown output.
type frontMatter struct {
	URL       string `yaml:"url"`
	Title     string `yaml:"title,omitempty"`
	Language  string `yaml:"language"`
	Method    string `yaml:"method"`
	FetchedAt string `yaml:"fetched_at"`
}

// MarkdownRenderer writes a reader view of the clone: YAML front matter
// followed by the cloned markup converted to Markdown.
type MarkdownRenderer struct{}

// NewMarkdownRenderer creates a MarkdownRenderer.
func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

// Render converts the cloned markup to Markdown.
func (r *MarkdownRenderer) Render(result *core.CloneResult, meta core.PageMetadata) ([]byte, error) {
	body, err := htmltomarkdown.ConvertString(result.HTML)
	if err != nil {
		return nil, fmt.Errorf("converting to markdown: %w", err)
	}

	header, err := yaml.Marshal(frontMatter{
		URL:       meta.URL,
		Title:     meta.Title,
		Language:  meta.Language,
		Method:    result.Method,
		FetchedAt: meta.FetchedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(body)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// Extension returns the file extension for Markdown output.
func (r *MarkdownRenderer) Extension() string {
	return ".md"
}
