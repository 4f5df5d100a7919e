package fetcher

import (
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/feedscroll/internal/logger"
)

// Markers of pages that render their content client-side.
var scriptShellMarkers = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<div id="__nuxt"></div>`,
	`<app-root></app-root>`,
	`ng-app`,
	`v-cloak`,
}

// AutoFetcher fetches statically and retries in a browser when the static
// response looks like it needs JavaScript.
type AutoFetcher struct {
	static  Fetcher
	dynamic Fetcher
}

// NewAuto creates an auto-detecting fetcher from a static and a dynamic one.
func NewAuto(static, dynamic Fetcher) *AutoFetcher {
	return &AutoFetcher{static: static, dynamic: dynamic}
}

// Fetch tries the static fetcher first and renders the page in the browser
// only when the static response looks script-rendered. Failed fetches are
// returned as is.
func (f *AutoFetcher) Fetch(ctx context.Context, targetURL string, opts Options) (Content, error) {
	content, err := f.static.Fetch(ctx, targetURL, opts)
	if err != nil {
		return content, err
	}

	if reason := needsBrowser(content.HTML, opts.WaitForSelector); reason != "" {
		logger.Debug("page needs a browser", "url", targetURL, "reason", reason)
		return f.dynamic.Fetch(ctx, targetURL, opts)
	}
	return content, nil
}

// needsBrowser returns why html looks script-rendered, or "" if it does not.
func needsBrowser(html, waitFor string) string {
	lower := strings.ToLower(html)
	for _, marker := range scriptShellMarkers {
		if strings.Contains(lower, marker) {
			return "script shell " + marker
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	if waitFor != "" && doc.Find(waitFor).Length() == 0 {
		return "no match for " + waitFor
	}

	text := strings.ToLower(strings.TrimSpace(doc.Find("body").Text()))
	noscript := strings.ToLower(doc.Find("noscript").Text())
	if len(text) < 100 || noscript != "" {
		for _, hint := range []string{"enable javascript", "javascript required", "javascript is required"} {
			if strings.Contains(text, hint) || strings.Contains(noscript, hint) {
				return "asks for javascript"
			}
		}
	}
	return ""
}

// Close releases both fetchers.
func (f *AutoFetcher) Close() error {
	return errors.Join(f.static.Close(), f.dynamic.Close())
}

// Type returns the fetcher type.
func (f *AutoFetcher) Type() string {
	return "auto"
}
