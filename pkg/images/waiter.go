// Package images waits for the images referenced by a page to reach a
// terminal state (loaded or failed) before its items are handed out.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jmylchreest/feedscroll/internal/logger"
)

// Defaults for HTTPWaiter.
const (
	DefaultConcurrency  = 6
	DefaultImageTimeout = 15 * time.Second
)

// Status is the terminal state of one image.
type Status struct {
	URL   string
	Bytes int64
	Err   error // nil when the image loaded
}

// Loaded reports whether the image loaded successfully.
func (s Status) Loaded() bool {
	return s.Err == nil
}

// Waiter blocks until every URL has loaded or failed.
type Waiter interface {
	Wait(ctx context.Context, urls []string) ([]Status, error)
}

// Option configures an HTTPWaiter.
type Option func(*HTTPWaiter)

// WithClient sets the HTTP client used for image checks.
func WithClient(c *http.Client) Option {
	return func(w *HTTPWaiter) {
		w.client = c
	}
}

// WithConcurrency bounds the number of images fetched at once.
func WithConcurrency(n int) Option {
	return func(w *HTTPWaiter) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithTimeout bounds each image individually.
func WithTimeout(d time.Duration) Option {
	return func(w *HTTPWaiter) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// HTTPWaiter downloads each image once and discards the body, the way a
// browser settles an img element.
type HTTPWaiter struct {
	client      *http.Client
	concurrency int
	timeout     time.Duration
}

// NewHTTPWaiter creates a waiter.
func NewHTTPWaiter(opts ...Option) *HTTPWaiter {
	w := &HTTPWaiter{
		client:      http.DefaultClient,
		concurrency: DefaultConcurrency,
		timeout:     DefaultImageTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Wait checks every URL. A failed image is reported in its Status and never
// fails the wait; only cancellation of ctx does.
func (w *HTTPWaiter) Wait(ctx context.Context, urls []string) ([]Status, error) {
	statuses := make([]Status, len(urls))
	if len(urls) == 0 {
		return statuses, nil
	}

	logger.Debug("waiting for images", "count", len(urls), "concurrency", w.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)

	for i, u := range urls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				statuses[i] = Status{URL: u, Err: err}
				return nil
			}
			statuses[i] = w.check(gctx, u)
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return statuses, err
	}

	failed := 0
	for _, s := range statuses {
		if !s.Loaded() {
			failed++
		}
	}
	logger.Debug("images settled", "count", len(urls), "failed", failed)
	return statuses, nil
}

func (w *HTTPWaiter) check(ctx context.Context, u string) Status {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Status{URL: u, Err: err}
	}

	resp, err := w.client.Do(req)
	if err != nil {
		logger.Debug("image failed", "url", u, "error", err)
		return Status{URL: u, Err: err}
	}
	defer resp.Body.Close()

	n, err := io.Copy(io.Discard, resp.Body)
	if err != nil {
		return Status{URL: u, Bytes: n, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Status{URL: u, Bytes: n, Err: fmt.Errorf("image status %d", resp.StatusCode)}
	}
	return Status{URL: u, Bytes: n}
}

// Nop settles every image immediately.
type Nop struct{}

// Wait returns a loaded status for every URL.
func (Nop) Wait(ctx context.Context, urls []string) ([]Status, error) {
	statuses := make([]Status, len(urls))
	for i, u := range urls {
		statuses[i] = Status{URL: u}
	}
	return statuses, ctx.Err()
}
