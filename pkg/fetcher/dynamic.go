package fetcher

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/feedscroll/internal/logger"
)

// DynamicFetcher uses chromedp for JavaScript-rendered pages.
type DynamicFetcher struct {
	config    BrowserConfig
	timeout   time.Duration
	allocCtx  context.Context
	cancelCtx context.CancelFunc
}

// NewDynamic creates a dynamic fetcher backed by its own browser allocator.
func NewDynamic(cfg BrowserConfig, timeout time.Duration) *DynamicFetcher {
	logger.Debug("creating dynamic fetcher")

	if timeout == 0 {
		timeout = DefaultTimeout
	}
	allocCtx, cancel := NewAllocator(context.Background(), cfg)

	return &DynamicFetcher{
		config:    cfg,
		timeout:   timeout,
		allocCtx:  allocCtx,
		cancelCtx: cancel,
	}
}

// Fetch retrieves rendered page content using a headless browser tab.
func (f *DynamicFetcher) Fetch(ctx context.Context, targetURL string, opts Options) (Content, error) {
	logger.Debug("dynamic fetch starting", "url", targetURL)

	start := time.Now()
	result := Content{
		URL:       targetURL,
		FetchedAt: start,
	}

	browserCtx, cancelBrowser := chromedp.NewContext(f.allocCtx)
	defer cancelBrowser()

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = f.timeout
	}
	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's context too.
	stop := context.AfterFunc(ctx, cancelTimeout)
	defer stop()

	// The first document response carries the real status code.
	var (
		mu          sync.Mutex
		seen        bool
		statusCode  int
		contentType string
	)
	chromedp.ListenTarget(timeoutCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if seen {
			return
		}
		seen = true
		statusCode = int(resp.Response.Status)
		contentType = resp.Response.MimeType
	})

	var html, finalURL string
	actions := setupActions(opts)

	waitSelector := "body"
	if opts.WaitForSelector != "" {
		waitSelector = opts.WaitForSelector
	}
	actions = append(actions,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady(waitSelector),
	)
	if opts.WaitDuration > 0 {
		actions = append(actions, chromedp.Sleep(opts.WaitDuration))
	}
	actions = append(actions,
		chromedp.OuterHTML("html", &html),
		chromedp.Location(&finalURL),
	)

	logger.Debug("dynamic fetch executing browser actions",
		"action_count", len(actions),
		"selector", waitSelector)

	err := chromedp.Run(timeoutCtx, actions...)
	result.Duration = time.Since(start)

	mu.Lock()
	result.StatusCode = statusCode
	result.ContentType = contentType
	mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		logger.Debug("dynamic fetch browser automation failed", "url", targetURL, "error", err)
		return result, &TransportError{URL: targetURL, StatusCode: result.StatusCode, Err: err}
	}
	if result.StatusCode != 0 && (result.StatusCode < 200 || result.StatusCode > 299) {
		return result, &TransportError{URL: targetURL, StatusCode: result.StatusCode, Err: ErrStatus}
	}
	if result.StatusCode == 0 {
		result.StatusCode = 200
	}

	result.HTML = html
	if finalURL != "" {
		result.URL = finalURL
	}

	logger.Debug("dynamic fetch complete",
		"url", result.URL,
		"html_size", len(html),
		"duration", result.Duration)
	return result, nil
}

// setupActions configures the tab before navigation.
func setupActions(opts Options) []chromedp.Action {
	actions := []chromedp.Action{
		network.Enable(),
	}
	if len(opts.Headers) > 0 {
		headers := network.Headers{}
		for k, v := range opts.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if opts.UserAgent != "" {
		actions = append(actions, emulation.SetUserAgentOverride(opts.UserAgent))
	}
	return actions
}

// Close shuts down the browser.
func (f *DynamicFetcher) Close() error {
	if f.cancelCtx != nil {
		f.cancelCtx()
	}
	return nil
}

// Type returns the fetcher type.
func (f *DynamicFetcher) Type() string {
	return "dynamic"
}
