package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/jmylchreest/feedscroll/internal/logger"
)

// StaticConfig holds configuration for the static fetcher.
type StaticConfig struct {
	UserAgent   string
	Timeout     time.Duration
	MaxBodySize int // bytes, 0 keeps colly's default
}

// DefaultStaticConfig returns sensible defaults.
func DefaultStaticConfig() StaticConfig {
	return StaticConfig{
		UserAgent: defaultUserAgent,
		Timeout:   DefaultTimeout,
	}
}

// StaticFetcher uses Colly for plain HTTP fetching.
type StaticFetcher struct {
	config StaticConfig
}

// NewStatic creates a new static fetcher.
func NewStatic(cfg StaticConfig) *StaticFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultStaticConfig().UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultStaticConfig().Timeout
	}
	return &StaticFetcher{config: cfg}
}

// Fetch retrieves page content using Colly.
func (f *StaticFetcher) Fetch(ctx context.Context, targetURL string, opts Options) (Content, error) {
	logger.Debug("static fetch starting", "url", targetURL)

	if err := ctx.Err(); err != nil {
		return Content{URL: targetURL}, &TransportError{URL: targetURL, Err: err}
	}

	start := time.Now()
	result := Content{
		URL:       targetURL,
		FetchedAt: start,
	}

	// A fresh collector per request keeps visited-URL tracking out of the way.
	userAgent := coalesce(opts.UserAgent, f.config.UserAgent)
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	if f.config.MaxBodySize > 0 {
		c.MaxBodySize = f.config.MaxBodySize
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = f.config.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	c.SetRequestTimeout(timeout)

	if len(opts.Headers) > 0 {
		c.OnRequest(func(r *colly.Request) {
			for k, v := range opts.Headers {
				r.Headers.Set(k, v)
			}
		})
	}

	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		result.StatusCode = r.StatusCode
		result.ContentType = r.Headers.Get("Content-Type")
		result.HTML = string(r.Body)
		// Resolve relative links against the final URL after redirects.
		result.URL = r.Request.URL.String()
		logger.Debug("static fetch response received",
			"status", r.StatusCode,
			"content_type", result.ContentType,
			"body_size", len(r.Body))
	})

	c.OnError(func(r *colly.Response, err error) {
		statusCode := 0
		if r != nil {
			statusCode = r.StatusCode
			result.StatusCode = statusCode
		}
		if statusCode != 0 {
			err = fmt.Errorf("%w: %v", ErrStatus, err)
		}
		fetchErr = &TransportError{URL: targetURL, StatusCode: statusCode, Err: err}
		logger.Debug("static fetch error", "status", statusCode, "error", err)
	})

	visitErr := c.Visit(targetURL)
	result.Duration = time.Since(start)

	if fetchErr != nil {
		return result, fetchErr
	}
	if visitErr != nil {
		logger.Debug("static fetch visit failed", "url", targetURL, "error", visitErr)
		return result, &TransportError{URL: targetURL, StatusCode: result.StatusCode, Err: visitErr}
	}
	if result.StatusCode < 200 || result.StatusCode > 299 {
		return result, &TransportError{URL: targetURL, StatusCode: result.StatusCode, Err: ErrStatus}
	}

	logger.Debug("static fetch complete", "url", targetURL, "duration", result.Duration)
	return result, nil
}

// Close releases resources.
func (f *StaticFetcher) Close() error {
	return nil
}

// Type returns the fetcher type.
func (f *StaticFetcher) Type() string {
	return "static"
}
