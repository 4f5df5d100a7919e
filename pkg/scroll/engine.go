// Package scroll drives scroll-triggered pagination: when the viewport nears
// the bottom of the content it loads the next page, emits the new items and
// waits for the consumer to resume before watching again.
package scroll

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jmylchreest/feedscroll/internal/logger"
	"github.com/jmylchreest/feedscroll/pkg/events"
	"github.com/jmylchreest/feedscroll/pkg/fetcher"
	"github.com/jmylchreest/feedscroll/pkg/images"
	"github.com/jmylchreest/feedscroll/pkg/loader"
	"github.com/jmylchreest/feedscroll/pkg/parser"
	"github.com/jmylchreest/feedscroll/pkg/position"
)

// ErrLoadInFlight is returned by Load while another load is running.
var ErrLoadInFlight = errors.New("load already in flight")

// PageLoader fetches and parses one page.
type PageLoader interface {
	Load(ctx context.Context, url string) (parser.Result, error)
}

type watcher interface {
	Watch()
	StopWatching()
	IsWatching() bool
}

type phase int

const (
	phaseIdle phase = iota
	phaseLoading
	phaseFinished
)

func (p phase) String() string {
	switch p {
	case phaseLoading:
		return "loading"
	case phaseFinished:
		return "finished"
	default:
		return "idle"
	}
}

// Outcome is the result of a Load call.
type Outcome struct {
	// Complete is true when no further page exists, either because the
	// engine was already finished or because this load reached the last page.
	Complete bool
	Items    []parser.Item
	Page     int
	URL      string
}

type settings struct {
	loader   PageLoader
	fetcher  fetcher.Fetcher
	waiter   images.Waiter
	ctx      context.Context
	debounce time.Duration
}

// Option configures an Engine.
type Option func(*settings)

// WithLoader replaces the page loader entirely.
func WithLoader(l PageLoader) Option {
	return func(s *settings) {
		s.loader = l
	}
}

// WithFetcher sets the transport used by the default loader.
func WithFetcher(f fetcher.Fetcher) Option {
	return func(s *settings) {
		s.fetcher = f
	}
}

// WithImageWaiter sets the image waiter used by the default loader.
func WithImageWaiter(w images.Waiter) Option {
	return func(s *settings) {
		s.waiter = w
	}
}

// WithContext sets the context for loads triggered by scrolling.
func WithContext(ctx context.Context) Option {
	return func(s *settings) {
		s.ctx = ctx
	}
}

// WithDebounce sets the scroll quiescence window.
func WithDebounce(d time.Duration) Option {
	return func(s *settings) {
		s.debounce = d
	}
}

// Engine owns the pagination state of one document.
type Engine struct {
	cfg     Config
	events  *events.Channel
	loader  PageLoader
	watcher watcher
	ctx     context.Context

	mu      sync.Mutex
	phase   phase
	page    int
	nextURL string
}

// New creates an engine for doc, watching vp. The initial next link is read
// from doc; an engine whose document has none starts finished.
func New(cfg Config, doc *goquery.Document, vp position.Viewport, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var missing []FieldError
	if doc == nil {
		missing = append(missing, FieldError{Field: "Document", Message: "is required"})
	}
	if vp == nil {
		missing = append(missing, FieldError{Field: "Viewport", Message: "is required"})
	}
	if len(missing) > 0 {
		return nil, &ConfigError{Fields: missing}
	}

	s := settings{ctx: context.Background()}
	for _, opt := range opts {
		opt(&s)
	}

	base := cfg.BaseURL
	if base == "" && doc.Url != nil {
		base = doc.Url.String()
	}
	next, err := parser.NextURL(doc.Selection, cfg.NextSelector, base)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		events:  events.New(EventTypes...),
		loader:  s.loader,
		ctx:     s.ctx,
		page:    1,
		nextURL: next,
	}
	if next == "" {
		e.phase = phaseFinished
	}

	if e.loader == nil {
		f := s.fetcher
		if f == nil {
			f = fetcher.NewStatic(fetcher.DefaultStaticConfig())
		}
		e.loader = loader.New(f, parser.New(cfg.ItemSelector, cfg.NextSelector),
			loader.WithWaitForImages(cfg.WaitForImages),
			loader.WithImageWaiter(s.waiter))
	}

	var wopts []position.Option
	if s.debounce > 0 {
		wopts = append(wopts, position.WithDebounce(s.debounce))
	}
	e.watcher = position.New(vp, cfg.Threshold, e.onThreshold, wopts...)

	logger.Debug("scroll engine created",
		"next", next,
		"finished", next == "",
		"threshold", cfg.Threshold,
		"auto_load", cfg.AutoLoad)
	return e, nil
}

// Load fetches the next page. When the engine is finished it returns a
// complete Outcome without fetching or emitting anything. A failed fetch
// leaves the pagination state untouched so Load may be called again. Only
// pages that yield items advance the page counter.
func (e *Engine) Load(ctx context.Context) (Outcome, error) {
	e.mu.Lock()
	switch e.phase {
	case phaseFinished:
		page := e.page
		e.mu.Unlock()
		return Outcome{Complete: true, Page: page}, nil
	case phaseLoading:
		e.mu.Unlock()
		return Outcome{}, ErrLoadInFlight
	}
	e.phase = phaseLoading
	url := e.nextURL
	e.mu.Unlock()

	logger.Debug("load starting", "url", url)
	e.emit(EventLoadStart, nil)

	result, err := e.loader.Load(ctx, url)
	if err != nil {
		e.mu.Lock()
		e.phase = phaseIdle
		e.mu.Unlock()

		logger.Warn("load failed", "url", url, "error", err)
		e.emit(EventLoadError, LoadError{URL: url, Err: err})
		return Outcome{}, err
	}

	// State settles before any event so listeners may resume or load again.
	e.mu.Lock()
	if len(result.Items) > 0 {
		e.page++
	}
	page := e.page
	finished := !result.HasNext()
	if finished {
		e.phase = phaseFinished
		e.nextURL = ""
	} else {
		e.phase = phaseIdle
		e.nextURL = result.NextURL
	}
	e.mu.Unlock()

	logger.Debug("load complete",
		"url", url,
		"page", page,
		"items", len(result.Items),
		"next", result.NextURL)

	if finished {
		logger.Info("pagination finished", "pages", page)
		e.emit(EventFinished, nil)
	}

	var once sync.Once
	e.emit(EventLoadEnd, LoadEnd{
		Items:  result.Items,
		Page:   page,
		URL:    url,
		Resume: func() { once.Do(e.Start) },
	})

	return Outcome{
		Complete: finished,
		Items:    result.Items,
		Page:     page,
		URL:      url,
	}, nil
}

// Start arms the position watcher unless the engine is finished.
func (e *Engine) Start() {
	if e.Finished() {
		return
	}
	e.watcher.Watch()
}

// Stop disarms the position watcher. An in-flight load still completes.
func (e *Engine) Stop() {
	e.watcher.StopWatching()
}

// Finished reports whether the last page has been reached.
func (e *Engine) Finished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == phaseFinished
}

// Loading reports whether a load is in flight.
func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == phaseLoading
}

// NextURL returns the URL of the next page, or "" when finished.
func (e *Engine) NextURL() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextURL
}

// Page returns the number of pages loaded, counting the initial document.
func (e *Engine) Page() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.page
}

// Watching reports whether the position watcher is armed.
func (e *Engine) Watching() bool {
	return e.watcher.IsWatching()
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) onThreshold() {
	if !e.cfg.AutoLoad {
		logger.Debug("threshold reached, waiting for manual load")
		e.emit(EventLoadReady, nil)
		return
	}

	if _, err := e.Load(e.ctx); err != nil {
		// Failures already went out as load:error.
		if errors.Is(err, ErrLoadInFlight) {
			logger.Debug("threshold reached during in-flight load")
		}
	}
}

func (e *Engine) emit(t events.Type, payload any) {
	if err := e.events.Emit(t, payload); err != nil {
		logger.Error("event emission failed", "event", t, "error", err)
	}
}
