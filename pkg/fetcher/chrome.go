package fetcher

import (
	"context"
	"os/exec"

	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/feedscroll/internal/logger"
)

// Common Chrome/Chromium binary names across different systems
var chromeBinaryNames = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	// macOS paths
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	// Common Linux paths
	"/usr/bin/google-chrome-stable",
	"/usr/bin/google-chrome",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
	// Windows paths
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
}

// FindChromePath searches PATH and common install locations for a
// Chrome/Chromium binary. Returns "" if none is found.
func FindChromePath() string {
	for _, name := range chromeBinaryNames {
		if path, err := exec.LookPath(name); err == nil {
			logger.Debug("found Chrome binary", "name", name, "path", path)
			return path
		}
	}
	return ""
}

// BrowserConfig controls the Chrome instance behind dynamic fetching and
// browser viewports.
type BrowserConfig struct {
	ExecPath  string // empty uses FindChromePath
	UserAgent string
	Headless  bool
	Width     int
	Height    int
}

// DefaultBrowserConfig returns a headless 1920x1080 configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		UserAgent: defaultUserAgent,
		Headless:  true,
		Width:     1920,
		Height:    1080,
	}
}

// NewAllocator starts a chromedp exec allocator for cfg. Cancel the returned
// func to shut the browser down.
func NewAllocator(parent context.Context, cfg BrowserConfig) (context.Context, context.CancelFunc) {
	defaults := DefaultBrowserConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		cfg.Width, cfg.Height = defaults.Width, defaults.Height
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
		chromedp.WindowSize(cfg.Width, cfg.Height),
	)

	execPath := cfg.ExecPath
	if execPath == "" {
		execPath = FindChromePath()
	}
	if execPath != "" {
		opts = append(opts, chromedp.ExecPath(execPath))
	} else {
		logger.Warn("no Chrome binary found - browser features may not work")
	}

	logger.Debug("browser allocator configured",
		"exec_path", execPath,
		"headless", cfg.Headless,
		"width", cfg.Width,
		"height", cfg.Height)

	return chromedp.NewExecAllocator(parent, opts...)
}
