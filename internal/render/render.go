// Package render turns parsed items into text for terminals and files.
package render

import (
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/feedscroll/pkg/parser"
)

// Format selects how items are rendered.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatHTML     Format = "html"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatMarkdown, FormatText, FormatHTML:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported render format: %s (use markdown, text, or html)", s)
	}
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithStripImages drops img elements before rendering.
func WithStripImages(strip bool) Option {
	return func(r *Renderer) {
		r.stripImages = strip
	}
}

// WithSeparator sets the text placed between items by RenderAll.
func WithSeparator(sep string) Option {
	return func(r *Renderer) {
		r.separator = sep
	}
}

// Renderer renders items in one format.
type Renderer struct {
	format      Format
	stripImages bool
	separator   string
}

// New creates a renderer.
func New(format Format, opts ...Option) *Renderer {
	r := &Renderer{
		format:    format,
		separator: "\n\n---\n\n",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Format returns the renderer's format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render renders one item.
func (r *Renderer) Render(item parser.Item) (string, error) {
	html := item.HTML
	if r.stripImages {
		stripped, err := stripImages(html)
		if err != nil {
			return "", err
		}
		html = stripped
	}

	switch r.format {
	case FormatHTML:
		return html, nil
	case FormatText:
		if r.stripImages || item.Text == "" {
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
			if err != nil {
				return "", err
			}
			return strings.Join(strings.Fields(doc.Text()), " "), nil
		}
		return item.Text, nil
	default:
		markdown, err := md.ConvertString(html)
		if err != nil {
			return "", fmt.Errorf("failed to convert item to markdown: %w", err)
		}
		return cleanWhitespace(markdown), nil
	}
}

// RenderAll renders items in order, joined by the separator.
func (r *Renderer) RenderAll(items []parser.Item) (string, error) {
	parts := make([]string, 0, len(items))
	for i, item := range items {
		s, err := r.Render(item)
		if err != nil {
			return "", fmt.Errorf("item %d: %w", i, err)
		}
		if s == "" {
			continue
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, r.separator), nil
}

func stripImages(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("img, picture").Remove()
	return doc.Find("body").Html()
}

// cleanWhitespace collapses runs of blank lines into one.
func cleanWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var result []string
	blankCount := 0

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blankCount++
			if blankCount <= 1 {
				result = append(result, "")
			}
		} else {
			blankCount = 0
			result = append(result, line)
		}
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}
