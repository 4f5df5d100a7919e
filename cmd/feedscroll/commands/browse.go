package commands

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/feedscroll/internal/logger"
	"github.com/jmylchreest/feedscroll/pkg/fetcher"
	"github.com/jmylchreest/feedscroll/pkg/scroll"
	"github.com/jmylchreest/feedscroll/pkg/viewport"
)

var browseCmd = &cobra.Command{
	Use:   "browse <url>",
	Short: "Append pages into a live browser tab as it scrolls",
	Long: `Browse opens the feed in Chrome and watches the real scroll position.
Items from each new page are inserted at the end of the container element,
then the engine is rearmed.

Without --headless a browser window opens and the command runs until the
window is closed, the feed ends, or it is interrupted. --auto-scroll jumps
to the bottom after every page.`,
	Args: cobra.ExactArgs(1),
	RunE: runBrowse,
}

func init() {
	rootCmd.AddCommand(browseCmd)

	flags := browseCmd.Flags()
	addPaginationFlags(flags)
	flags.String("container", "", "CSS selector of the element new items are appended to (required)")
	flags.Bool("headless", false, "run Chrome without a window")
	flags.Bool("auto-scroll", false, "scroll to the bottom after every page")
	flags.Int("width", 1280, "browser window width")
	flags.Int("height", 900, "browser window height")
	flags.String("chrome", "", "path to the Chrome binary")

	_ = browseCmd.MarkFlagRequired("container")
}

func runBrowse(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	target := args[0]
	flags := cmd.Flags()

	cfg, err := engineConfig(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}

	container, _ := flags.GetString("container")
	headless, _ := flags.GetBool("headless")
	autoScroll, _ := flags.GetBool("auto-scroll")
	width, _ := flags.GetInt("width")
	height, _ := flags.GetInt("height")
	chromePath, _ := flags.GetString("chrome")
	opts := fetchOptions(cmd)

	allocCtx, allocCancel := fetcher.NewAllocator(ctx, fetcher.BrowserConfig{
		ExecPath:  chromePath,
		UserAgent: opts.UserAgent,
		Headless:  headless,
		Width:     width,
		Height:    height,
	})
	defer allocCancel()

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	defer tabCancel()

	waitFor := opts.WaitForSelector
	if waitFor == "" {
		waitFor = container
	}
	logger.Debug("opening page", "url", target, "wait_for", waitFor)
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady(waitFor, chromedp.ByQuery),
	); err != nil {
		logger.Error("failed to open page", "url", target, "error", err)
		return err
	}

	screen, err := viewport.NewBrowser(tabCtx)
	if err != nil {
		return err
	}
	doc, err := screen.Document()
	if err != nil {
		return err
	}

	f, err := newFetcher(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	engine, err := scroll.New(cfg, doc, screen, engineOptions(ctx, cmd, f, cfg)...)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		return err
	}
	defer engine.Stop()

	done := make(chan error, 1)
	var doneOnce sync.Once
	stop := func(err error) {
		doneOnce.Do(func() { done <- err })
	}

	if _, err := engine.OnLoadEnd(func(p scroll.LoadEnd) {
		fragments := make([]string, 0, len(p.Items))
		for _, item := range p.Items {
			fragments = append(fragments, item.HTML)
		}
		if err := screen.Inject(container, fragments); err != nil {
			stop(fmt.Errorf("failed to insert page %d: %w", p.Page, err))
			return
		}
		logInfo("page %d: %d items", p.Page, len(p.Items))

		if engine.Finished() {
			logInfo("end of feed")
			if autoScroll || headless {
				stop(nil)
			}
			return
		}

		p.Resume()
		if autoScroll {
			if err := screen.ScrollToBottom(); err != nil {
				logger.Warn("scroll failed", "error", err)
			}
		}
	}); err != nil {
		return err
	}
	if _, err := engine.OnLoadError(func(e scroll.LoadError) {
		stop(e)
	}); err != nil {
		return err
	}
	if _, err := engine.OnLoadReady(func() {
		logInfo("more pages available")
		if _, err := engine.Load(ctx); err != nil {
			logger.Debug("manual load failed", "error", err)
		}
	}); err != nil {
		return err
	}

	if engine.Finished() {
		logInfo("page has no next link")
		return nil
	}

	engine.Start()
	if autoScroll {
		if err := screen.ScrollToBottom(); err != nil {
			logger.Warn("scroll failed", "error", err)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			logger.Error("browse stopped", "error", err)
		}
		return err
	case <-tabCtx.Done():
		logger.Info("browser closed", "pages", engine.Page())
		return nil
	case <-ctx.Done():
		logger.Info("interrupted", "pages", engine.Page())
		return nil
	}
}
