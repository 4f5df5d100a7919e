// Package loader retrieves one page of a paginated resource: it fetches the
// markup, parses items and the next link, and optionally waits for the
// items' images to settle.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/feedscroll/internal/logger"
	"github.com/jmylchreest/feedscroll/pkg/fetcher"
	"github.com/jmylchreest/feedscroll/pkg/images"
	"github.com/jmylchreest/feedscroll/pkg/parser"
)

// Option configures a Loader.
type Option func(*Loader)

// WithWaitForImages makes Load block until the items' images have loaded or
// failed.
func WithWaitForImages(wait bool) Option {
	return func(l *Loader) {
		l.waitForImages = wait
	}
}

// WithImageWaiter replaces the default image waiter.
func WithImageWaiter(w images.Waiter) Option {
	return func(l *Loader) {
		if w != nil {
			l.waiter = w
		}
	}
}

// WithFetchOptions sets per-request fetch options.
func WithFetchOptions(opts fetcher.Options) Option {
	return func(l *Loader) {
		l.fetchOpts = opts
	}
}

// Loader turns a URL into a parsed page.
type Loader struct {
	fetcher       fetcher.Fetcher
	parser        *parser.Parser
	waiter        images.Waiter
	waitForImages bool
	fetchOpts     fetcher.Options
}

// New creates a loader.
func New(f fetcher.Fetcher, p *parser.Parser, opts ...Option) *Loader {
	l := &Loader{
		fetcher: f,
		parser:  p,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.waiter == nil {
		l.waiter = images.NewHTTPWaiter()
	}
	return l
}

// Load fetches and parses url. Transport failures are returned as
// *fetcher.TransportError and are not retried.
func (l *Loader) Load(ctx context.Context, url string) (parser.Result, error) {
	start := time.Now()
	logger.Debug("loading page", "url", url, "fetcher", l.fetcher.Type())

	content, err := l.fetcher.Fetch(ctx, url, l.fetchOpts)
	if err != nil {
		return parser.Result{}, err
	}

	// Links resolve against where the page actually came from.
	base := content.URL
	if base == "" {
		base = url
	}

	result, err := l.parser.Parse(content.HTML, base)
	if err != nil {
		return parser.Result{}, fmt.Errorf("failed to parse %s: %w", url, err)
	}

	if l.waitForImages {
		srcs := result.ImageURLs()
		statuses, err := l.waiter.Wait(ctx, srcs)
		if err != nil {
			return parser.Result{}, fmt.Errorf("waiting for images: %w", err)
		}
		failed := 0
		for _, s := range statuses {
			if !s.Loaded() {
				failed++
			}
		}
		if failed > 0 {
			logger.Debug("some images failed to load", "url", url, "failed", failed, "total", len(statuses))
		}
	}

	logger.Debug("page loaded",
		"url", url,
		"items", len(result.Items),
		"next", result.NextURL,
		"duration", time.Since(start))
	return result, nil
}
