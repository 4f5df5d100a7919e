// Package parser extracts content items and the next-page link from a
// fetched page.
package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Item is a single content node from a page.
type Item struct {
	HTML   string   `json:"html" yaml:"html"`
	Text   string   `json:"text" yaml:"text"`
	Images []string `json:"images,omitempty" yaml:"images,omitempty"`

	// Selection is the parsed node. It belongs to a detached document.
	Selection *goquery.Selection `json:"-" yaml:"-"`
}

// Result is what a page yields.
type Result struct {
	Items   []Item
	NextURL string // empty when there is no further page
}

// HasNext reports whether the page links to another page.
func (r Result) HasNext() bool {
	return r.NextURL != ""
}

// ImageURLs returns every image referenced by the items, deduplicated, in
// document order.
func (r Result) ImageURLs() []string {
	var urls []string
	seen := make(map[string]bool)
	for _, item := range r.Items {
		for _, src := range item.Images {
			if seen[src] {
				continue
			}
			seen[src] = true
			urls = append(urls, src)
		}
	}
	return urls
}

// Parser is bound to an item selector and a next-link selector.
type Parser struct {
	ItemSelector string
	NextSelector string
}

// New creates a parser.
func New(itemSelector, nextSelector string) *Parser {
	return &Parser{
		ItemSelector: itemSelector,
		NextSelector: nextSelector,
	}
}

// Parse extracts items and the next-page URL from raw markup. Relative URLs
// are resolved against baseURL when it is non-empty.
func (p *Parser) Parse(raw string, baseURL string) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("failed to parse page: %w", err)
	}

	base, err := parseBase(baseURL)
	if err != nil {
		return Result{}, err
	}

	var result Result
	doc.Find(p.ItemSelector).Each(func(_ int, s *goquery.Selection) {
		result.Items = append(result.Items, newItem(s, base))
	})
	result.NextURL = nextURL(doc.Selection, p.NextSelector, base)

	return result, nil
}

// NextURL returns the link target of the first nextSelector match inside
// root, or "" when there is none.
func NextURL(root *goquery.Selection, nextSelector string, baseURL string) (string, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return "", err
	}
	return nextURL(root, nextSelector, base), nil
}

func nextURL(root *goquery.Selection, nextSelector string, base *url.URL) string {
	if nextSelector == "" || root == nil {
		return ""
	}

	href, exists := root.Find(nextSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" {
		return ""
	}

	// Skip fragments and javascript links
	if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return ""
	}

	return resolve(base, href)
}

func newItem(s *goquery.Selection, base *url.URL) Item {
	html, _ := goquery.OuterHtml(s)
	return Item{
		HTML:      html,
		Text:      cleanText(s.Text()),
		Images:    imageSources(s, base),
		Selection: s,
	}
}

// imageSources lists the URL a browser would load for each img, i.e. src,
// falling back to the first srcset candidate.
func imageSources(s *goquery.Selection, base *url.URL) []string {
	var out []string
	s.Find("img").AddSelection(s.Filter("img")).Each(func(_ int, img *goquery.Selection) {
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" {
			if ss := strings.TrimSpace(img.AttrOr("srcset", "")); ss != "" {
				candidate := strings.TrimSpace(strings.Split(ss, ",")[0])
				if fields := strings.Fields(candidate); len(fields) > 0 {
					src = fields[0]
				}
			}
		}
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		out = append(out, resolve(base, src))
	})
	return out
}

func parseBase(baseURL string) (*url.URL, error) {
	if baseURL == "" {
		return nil, nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	return base, nil
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if base != nil && !u.IsAbs() {
		u = base.ResolveReference(u)
	}
	return u.String()
}

// cleanText normalizes whitespace in text.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
