// Package core defines the pipeline types and interfaces for PageClone.
// Each stage of the pipeline is a clean, testable interface; concrete
// implementations live in the sub-packages (fetch, normalize, reconstruct,
// combine) and are sequenced by core/pipeline.
package core

import (
	"context"
	"net/url"
	"time"
)

// CloneRequest is a validated request to clone a single page.
type CloneRequest struct {
	TargetURL string
}

// NewCloneRequest validates rawURL and returns an immutable CloneRequest.
// The URL must be absolute with an http or https scheme.
func NewCloneRequest(rawURL string) (CloneRequest, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return CloneRequest{}, &InvalidInputError{URL: rawURL, Reason: err.Error()}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return CloneRequest{}, &InvalidInputError{URL: rawURL, Reason: "scheme must be http or https (e.g. https://example.com)"}
	}
	if parsed.Host == "" {
		return CloneRequest{}, &InvalidInputError{URL: rawURL, Reason: "missing host"}
	}
	return CloneRequest{TargetURL: parsed.String()}, nil
}

// Stylesheet is one active style sheet of a rendered page, in discovery order.
type Stylesheet struct {
	// Href is the sheet's own URL; empty for inline <style> sheets.
	Href string `json:"href,omitempty"`
	// Media is the sheet's media list ("" or "all" means unconditional).
	Media string `json:"media,omitempty"`
	Text  string `json:"text"`
}

// FetchedPage holds the rendered markup and styles of a page.
type FetchedPage struct {
	URL      string
	FinalURL string // post-redirect
	Status   int
	Markup   string
	Styles   []Stylesheet
	Warnings []string
}

// NormalizedContent is sanitized, script-free markup plus a single style
// document with every relative reference resolved.
type NormalizedContent struct {
	Markup   string
	Styles   string
	FinalURL string
	Title    string
	Lang     string
	Warnings []string
}

// Content sources for ReconstructedContent fields.
const (
	SourceNormalized = "normalized"
	SourceModel      = "model"
)

// ReconstructedContent has the shape of NormalizedContent; each field may have
// been regenerated by the model or carried over from normalization.
type ReconstructedContent struct {
	NormalizedContent
	MarkupSource string
	StyleSource  string
}

// Passthrough wraps normalized content as a reconstruction that changed nothing.
func Passthrough(n *NormalizedContent) *ReconstructedContent {
	return &ReconstructedContent{
		NormalizedContent: *n,
		MarkupSource:      SourceNormalized,
		StyleSource:       SourceNormalized,
	}
}

// Clone methods reported in CloneResult.Method.
const (
	MethodReconstructed = "reconstructed"
	MethodPartial       = "partial"
	MethodNormalized    = "normalized"
)

// Method reports how much of the content came from the model.
func (r *ReconstructedContent) Method() string {
	switch {
	case r.MarkupSource == SourceModel && r.StyleSource == SourceModel:
		return MethodReconstructed
	case r.MarkupSource == SourceModel || r.StyleSource == SourceModel:
		return MethodPartial
	default:
		return MethodNormalized
	}
}

// CloneResult is the terminal artifact returned to callers.
type CloneResult struct {
	HTML         string   `json:"html"`
	CSS          string   `json:"css"`
	CombinedHTML string   `json:"combinedHtml"`
	Method       string   `json:"method"`
	FinalURL     string   `json:"finalUrl"`
	Title        string   `json:"title,omitempty"`
	Lang         string   `json:"lang,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

// PageMetadata holds metadata about a cloned page for renderers.
type PageMetadata struct {
	URL       string `json:"url"`
	Domain    string `json:"domain"`
	Path      string `json:"path"`
	Title     string `json:"title"`
	Language  string `json:"language"`
	FetchedAt string `json:"fetched_at"` // ISO8601
}

// MetadataFor builds PageMetadata from a result.
func MetadataFor(result *CloneResult, fetchedAt time.Time) PageMetadata {
	meta := PageMetadata{
		URL:       result.FinalURL,
		Title:     result.Title,
		Language:  result.Lang,
		FetchedAt: fetchedAt.UTC().Format(time.RFC3339),
	}
	if parsed, err := url.Parse(result.FinalURL); err == nil {
		meta.Domain = parsed.Host
		meta.Path = parsed.Path
	}
	if meta.Language == "" {
		meta.Language = "en"
	}
	return meta
}

// Fetcher loads a live-rendered page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedPage, error)
}

// Normalizer sanitizes a fetched page. It must be deterministic and must not
// perform I/O.
type Normalizer interface {
	Normalize(page *FetchedPage) (*NormalizedContent, error)
}

// Reconstructor optionally improves normalized content. Implementations fall
// back to the input rather than returning an error for model failures.
type Reconstructor interface {
	Reconstruct(ctx context.Context, content *NormalizedContent) *ReconstructedContent
}

// Combiner assembles the final self-contained document.
type Combiner interface {
	Combine(content *ReconstructedContent) (*CloneResult, error)
}

// Renderer serializes a clone result for writing to disk.
type Renderer interface {
	Render(result *CloneResult, meta PageMetadata) ([]byte, error)
	Extension() string
}
