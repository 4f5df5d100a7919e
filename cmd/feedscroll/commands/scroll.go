package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/feedscroll/internal/logger"
	"github.com/jmylchreest/feedscroll/internal/metrics"
	"github.com/jmylchreest/feedscroll/internal/output"
	"github.com/jmylchreest/feedscroll/internal/render"
	"github.com/jmylchreest/feedscroll/pkg/scroll"
	"github.com/jmylchreest/feedscroll/pkg/viewport"
)

var scrollCmd = &cobra.Command{
	Use:   "scroll <url>",
	Short: "Scroll through a feed headlessly and write every page",
	Long: `Scroll simulates a reader on a virtual viewport. After each page is
appended the reader jumps to the bottom, which triggers the next load, until
the feed runs out of pages.

Each page is written as a record with its items.

Examples:
  feedscroll scroll https://example.com/blog --items ".post" --next "a.next"

  # Stop after five pages, write YAML with markdown bodies
  feedscroll scroll https://example.com/blog --items ".post" --next "a.next" \
      --max-pages 5 --format yaml --markdown

  # Manual mode: load only when the engine reports a load is possible
  feedscroll scroll https://example.com/blog --items ".post" --next "a.next" --manual`,
	Args: cobra.ExactArgs(1),
	RunE: runScroll,
}

func init() {
	rootCmd.AddCommand(scrollCmd)

	flags := scrollCmd.Flags()
	addPaginationFlags(flags)

	// Simulated viewport
	flags.Float64("viewport-height", 900, "height of the simulated viewport")
	flags.Float64("item-height", 300, "height each item adds to the simulated document")
	flags.Int("max-pages", 0, "stop after this many pages (0=unlimited)")

	// Output settings
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "json", "output format: json, jsonl, yaml")
	flags.Bool("pretty", true, "indent JSON output")
	flags.Bool("html", false, "include item HTML in records")
	flags.Bool("markdown", false, "include item markdown in records")

	// Metrics
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
}

func runScroll(cmd *cobra.Command, args []string) error {
	initLogger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	target := args[0]
	logger.Debug("scroll command starting", "url", target)

	cfg, err := engineConfig(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}

	f, err := newFetcher(cmd)
	if err != nil {
		logger.Error("failed to create fetcher", "error", err)
		return err
	}
	defer func() { _ = f.Close() }()

	first, err := fetchFirstPage(ctx, f, target, cfg, fetchOptions(cmd))
	if err != nil {
		logger.Error("failed to fetch first page", "url", target, "error", err)
		return err
	}

	// Setup output
	outFile := os.Stdout
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		file, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logger.Error("failed to create output file", "path", outPath, "error", err)
			return err
		}
		defer func() { _ = file.Close() }()
		outFile = file
	}

	formatStr, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return err
	}
	pretty, _ := cmd.Flags().GetBool("pretty")
	writer, err := output.NewWriter(outFile, format, output.WithPretty(pretty))
	if err != nil {
		logger.Error("failed to create output writer", "format", formatStr, "error", err)
		return err
	}
	defer func() { _ = writer.Close() }()

	recOpts := output.RecordOptions{}
	recOpts.IncludeHTML, _ = cmd.Flags().GetBool("html")
	if withMarkdown, _ := cmd.Flags().GetBool("markdown"); withMarkdown {
		recOpts.Markdown = render.New(render.FormatMarkdown)
	}

	viewportHeight, _ := cmd.Flags().GetFloat64("viewport-height")
	itemHeight, _ := cmd.Flags().GetFloat64("item-height")
	maxPages, _ := cmd.Flags().GetInt("max-pages")

	screen := viewport.NewVirtual(viewportHeight, float64(len(first.Result.Items))*itemHeight)
	engine, err := scroll.New(cfg, first.Doc, screen, engineOptions(ctx, cmd, f, cfg)...)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		return err
	}
	defer engine.Stop()

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		stop, err := serveMetrics(engine, addr)
		if err != nil {
			return err
		}
		defer stop()
	}

	run := &scrollRun{
		engine:     engine,
		screen:     screen,
		writer:     writer,
		recOpts:    recOpts,
		itemHeight: itemHeight,
		maxPages:   maxPages,
		ctx:        ctx,
		done:       make(chan struct{}),
		started:    time.Now(),
	}

	if err := run.writePage(scroll.LoadEnd{
		Items: first.Result.Items,
		Page:  1,
		URL:   first.URL,
	}); err != nil {
		return err
	}

	if engine.Finished() || (maxPages > 0 && maxPages <= 1) {
		logger.Debug("first page is the only page")
		run.summary()
		return nil
	}

	if err := run.attach(); err != nil {
		return err
	}

	logger.Info("scrolling",
		"url", target,
		"next", engine.NextURL(),
		"auto_load", cfg.AutoLoad,
		"threshold", cfg.Threshold)

	engine.Start()
	screen.ScrollToBottom()

	select {
	case <-run.done:
	case <-ctx.Done():
		logger.Info("interrupted", "pages", engine.Page())
	}
	engine.Stop()
	run.closeOutput()

	run.summary()
	return run.err()
}

// scrollRun drives a virtual reader through the feed.
type scrollRun struct {
	engine     *scroll.Engine
	screen     *viewport.Virtual
	writer     output.Writer
	recOpts    output.RecordOptions
	itemHeight float64
	maxPages   int
	ctx        context.Context
	started    time.Time

	mu       sync.Mutex
	closed   bool
	pages    int
	items    int
	loadErr  error
	done     chan struct{}
	doneOnce sync.Once
}

func (r *scrollRun) attach() error {
	if _, err := r.engine.OnLoadEnd(r.onLoadEnd); err != nil {
		return err
	}
	if _, err := r.engine.OnLoadError(func(e scroll.LoadError) {
		r.fail(e)
	}); err != nil {
		return err
	}
	if _, err := r.engine.OnLoadReady(func() {
		logger.Debug("load ready, loading next page")
		if _, err := r.engine.Load(r.ctx); err != nil && !errors.Is(err, scroll.ErrLoadInFlight) {
			logger.Debug("manual load failed", "error", err)
		}
	}); err != nil {
		return err
	}
	return nil
}

func (r *scrollRun) onLoadEnd(p scroll.LoadEnd) {
	if r.isClosed() {
		return
	}
	if err := r.writePage(p); err != nil {
		r.fail(err)
		return
	}

	if r.engine.Finished() || (r.maxPages > 0 && p.Page >= r.maxPages) {
		r.finish()
		return
	}

	// The appended items push the bottom out of reach until the reader
	// scrolls again.
	r.screen.Grow(float64(len(p.Items)) * r.itemHeight)
	p.Resume()
	r.screen.ScrollToBottom()
}

func (r *scrollRun) writePage(p scroll.LoadEnd) error {
	final := r.engine.Finished() || (r.maxPages > 0 && p.Page >= r.maxPages)
	rec, err := output.NewPageRecord(p, final, r.recOpts)
	if err != nil {
		return fmt.Errorf("failed to build record for page %d: %w", p.Page, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		logger.Debug("output closed, dropping page", "page", p.Page)
		return nil
	}
	if err := r.writer.Write(rec); err != nil {
		return fmt.Errorf("failed to write page %d: %w", p.Page, err)
	}
	r.pages++
	r.items += len(p.Items)

	logger.Debug("page written", "page", p.Page, "items", len(p.Items), "final", final)
	return nil
}

func (r *scrollRun) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// closeOutput stops further writes. A write in progress finishes first.
func (r *scrollRun) closeOutput() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *scrollRun) fail(err error) {
	r.mu.Lock()
	if r.loadErr == nil {
		r.loadErr = err
	}
	r.mu.Unlock()
	logger.Error("scroll stopped", "error", err)
	r.finish()
}

func (r *scrollRun) finish() {
	r.doneOnce.Do(func() { close(r.done) })
}

func (r *scrollRun) err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

func (r *scrollRun) summary() {
	r.mu.Lock()
	defer r.mu.Unlock()
	logInfo("%s pages, %s items in %s",
		humanize.Comma(int64(r.pages)),
		humanize.Comma(int64(r.items)),
		time.Since(r.started).Round(time.Millisecond))
}

// serveMetrics exposes the engine's metrics until the returned func is called.
func serveMetrics(e *scroll.Engine, addr string) (func(), error) {
	collector := metrics.New()
	if err := collector.Observe(e); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
