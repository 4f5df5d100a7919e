package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jmylchreest/feedscroll/internal/logger"
	"github.com/jmylchreest/feedscroll/internal/version"
	"github.com/jmylchreest/feedscroll/pkg/fetcher"
	"github.com/jmylchreest/feedscroll/pkg/loader"
	"github.com/jmylchreest/feedscroll/pkg/parser"
	"github.com/jmylchreest/feedscroll/pkg/scroll"
)

// addPaginationFlags registers the flags shared by every command that drives
// an engine.
func addPaginationFlags(flags *pflag.FlagSet) {
	// Selectors
	flags.String("items", "", "CSS selector for content items (required)")
	flags.String("next", "", "CSS selector for the next-page link (required)")
	flags.String("base-url", "", "base URL for relative links in the first page")

	// Trigger settings
	flags.Float64("threshold", scroll.DefaultThreshold, "distance from the bottom that triggers a load")
	flags.Bool("manual", false, "announce when a load is possible instead of loading")
	flags.Bool("wait-images", false, "wait for item images before reporting a page")
	flags.Duration("debounce", 100*time.Millisecond, "settle time for scroll notifications")

	// Fetch settings
	flags.String("fetch-mode", "static", "fetch mode: static, dynamic, auto")
	flags.Duration("timeout", fetcher.DefaultTimeout, "request timeout")
	flags.String("user-agent", "", "override the request user agent")
	flags.Bool("identify", false, "send a feedscroll user agent instead of a browser one")
	flags.String("wait-for", "", "CSS selector to wait for before reading the page (dynamic mode)")
	flags.StringToString("header", nil, "extra request headers (key=value, can be repeated)")
}

// engineConfig builds the engine config from the "scroll" config section,
// then applies any flags that were set explicitly.
func engineConfig(cmd *cobra.Command) (scroll.Config, error) {
	cfg := scroll.DefaultConfig()
	if err := viper.UnmarshalKey("scroll", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to read scroll config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("items") {
		cfg.ItemSelector, _ = flags.GetString("items")
	}
	if flags.Changed("next") {
		cfg.NextSelector, _ = flags.GetString("next")
	}
	if flags.Changed("base-url") {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("threshold") {
		cfg.Threshold, _ = flags.GetFloat64("threshold")
	}
	if flags.Changed("manual") {
		manual, _ := flags.GetBool("manual")
		cfg.AutoLoad = !manual
	}
	if flags.Changed("wait-images") {
		cfg.WaitForImages, _ = flags.GetBool("wait-images")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// fetchOptions collects per-request settings from flags.
func fetchOptions(cmd *cobra.Command) fetcher.Options {
	flags := cmd.Flags()
	timeout, _ := flags.GetDuration("timeout")
	userAgent, _ := flags.GetString("user-agent")
	waitFor, _ := flags.GetString("wait-for")
	headers, _ := flags.GetStringToString("header")
	if identify, _ := flags.GetBool("identify"); identify && userAgent == "" {
		userAgent = version.UserAgent()
	}
	return fetcher.Options{
		UserAgent:       userAgent,
		Timeout:         timeout,
		WaitForSelector: waitFor,
		Headers:         headers,
	}
}

// newFetcher creates the fetcher selected by --fetch-mode.
func newFetcher(cmd *cobra.Command) (fetcher.Fetcher, error) {
	mode, _ := cmd.Flags().GetString("fetch-mode")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	logger.Debug("fetch mode", "mode", mode, "timeout", timeout)

	switch mode {
	case "dynamic":
		return fetcher.NewDynamic(fetcher.DefaultBrowserConfig(), timeout), nil
	case "auto":
		return fetcher.NewAuto(
			fetcher.NewStatic(fetcher.StaticConfig{Timeout: timeout}),
			fetcher.NewDynamic(fetcher.DefaultBrowserConfig(), timeout),
		), nil
	case "static", "":
		return fetcher.NewStatic(fetcher.StaticConfig{Timeout: timeout}), nil
	default:
		return nil, fmt.Errorf("unknown fetch mode: %s (use 'static', 'dynamic' or 'auto')", mode)
	}
}

// firstPage is the initial document the engine starts from.
type firstPage struct {
	Doc    *goquery.Document
	Result parser.Result
	URL    string
}

// fetchFirstPage fetches and parses the initial document.
func fetchFirstPage(ctx context.Context, f fetcher.Fetcher, target string, cfg scroll.Config, opts fetcher.Options) (firstPage, error) {
	content, err := f.Fetch(ctx, target, opts)
	if err != nil {
		return firstPage{}, err
	}
	logger.Debug("first page fetched",
		"url", content.URL,
		"size", humanize.Bytes(uint64(content.Size())),
		"duration", content.Duration)

	return parseFirstPage(content.HTML, content.URL, cfg)
}

func parseFirstPage(html, pageURL string, cfg scroll.Config) (firstPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return firstPage{}, fmt.Errorf("failed to parse first page: %w", err)
	}
	if u, err := url.Parse(pageURL); err == nil {
		doc.Url = u
	}

	base := pageURL
	if cfg.BaseURL != "" {
		base = cfg.BaseURL
	}
	result, err := parser.New(cfg.ItemSelector, cfg.NextSelector).Parse(html, base)
	if err != nil {
		return firstPage{}, err
	}
	return firstPage{Doc: doc, Result: result, URL: pageURL}, nil
}

// engineOptions returns the engine options shared by every command. Later
// pages are fetched with the same request options as the first.
func engineOptions(ctx context.Context, cmd *cobra.Command, f fetcher.Fetcher, cfg scroll.Config) []scroll.Option {
	debounce, _ := cmd.Flags().GetDuration("debounce")
	l := loader.New(f, parser.New(cfg.ItemSelector, cfg.NextSelector),
		loader.WithWaitForImages(cfg.WaitForImages),
		loader.WithFetchOptions(fetchOptions(cmd)))
	return []scroll.Option{
		scroll.WithLoader(l),
		scroll.WithContext(ctx),
		scroll.WithDebounce(debounce),
	}
}
