// Package output handles file naming and writing for clone outputs.
// Filenames are derived from the URL (e.g., example_com_docs.html). In split
// mode the markup, styles and combined document are written side by side.
package output

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gaurav-prasanna/pageclone/core"
)

// Writer writes rendered output to disk.
type Writer struct {
	OutputDir string
}

// New creates a Writer targeting the given output directory.
// If outputDir is empty, it defaults to the current working directory.
func New(outputDir string) (*Writer, error) {
	if outputDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting working directory: %w", err)
		}
		outputDir = wd
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	return &Writer{OutputDir: outputDir}, nil
}

// Write writes data to a file named after rawURL with the given extension.
func (w *Writer) Write(rawURL string, data []byte, ext string) (string, error) {
	path := filepath.Join(w.OutputDir, filenameFromURL(rawURL)+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file %s: %w", path, err)
	}
	return path, nil
}

// WriteSplit writes the markup, the style document and the combined document
// as NAME.html, NAME.css and NAME.combined.html. The markup file links the
// style file so it renders standalone.
func (w *Writer) WriteSplit(rawURL string, result *core.CloneResult) ([]string, error) {
	name := filenameFromURL(rawURL)
	files := []struct {
		ext  string
		data string
	}{
		{".html", linkStylesheet(result.HTML, name+".css")},
		{".css", result.CSS},
		{".combined.html", result.CombinedHTML},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path, err := w.Write(rawURL, []byte(f.data), f.ext)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// linkStylesheet adds a <link> to href before </head>, or at the start of the
// markup when it has no head.
func linkStylesheet(markup, href string) string {
	link := fmt.Sprintf(`<link rel="stylesheet" href="%s">`, href)
	if i := strings.Index(markup, "</head>"); i >= 0 {
		return markup[:i] + link + markup[i:]
	}
	return link + markup
}

// filenameFromURL converts a URL into a flat filename.
// Example: https://example.com/docs/intro → example_com_docs_intro
func filenameFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return sanitize(rawURL)
	}

	parts := []string{sanitize(parsed.Host)}
	path := strings.Trim(parsed.Path, "/")
	if path != "" {
		for _, seg := range strings.Split(path, "/") {
			parts = append(parts, sanitize(seg))
		}
	}
	return strings.Join(parts, "_")
}

// sanitize replaces non-alphanumeric characters with underscores.
func sanitize(s string) string {
	var b strings.Builder
	for _, ch := range s {
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}
