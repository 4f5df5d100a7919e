package viewport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/jmylchreest/feedscroll/internal/logger"
	"github.com/jmylchreest/feedscroll/pkg/position"
)

// ErrContainerNotFound is returned by Inject when the container selector
// matches nothing.
var ErrContainerNotFound = errors.New("container not found")

const bindingName = "feedscrollNotify"

// listenScript forwards scroll and resize events to the binding once per
// document.
const listenScript = `(() => {
	if (window.__feedscrollBound) return true;
	window.__feedscrollBound = true;
	const notify = () => window.` + bindingName + `('');
	window.addEventListener('scroll', notify, {passive: true});
	window.addEventListener('resize', notify);
	return true;
})()`

const metricsScript = `({
	viewport: window.innerHeight,
	offset: window.scrollY,
	document: Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)
})`

type browserMetrics struct {
	Viewport float64 `json:"viewport"`
	Offset   float64 `json:"offset"`
	Document float64 `json:"document"`
}

// Browser is a viewport over a chromedp tab. Scroll and resize events in the
// page are delivered to subscribers.
type Browser struct {
	ctx context.Context // chromedp tab context

	mu     sync.Mutex
	last   position.Metrics
	subs   map[uint64]func()
	nextID uint64
}

// NewBrowser attaches to the chromedp tab in ctx, which must already have
// navigated to the document.
func NewBrowser(ctx context.Context) (*Browser, error) {
	b := &Browser{
		ctx:  ctx,
		subs: make(map[uint64]func()),
	}

	chromedp.ListenTarget(ctx, func(ev any) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == bindingName {
			b.notify()
		}
	})

	if err := chromedp.Run(ctx,
		runtime.AddBinding(bindingName),
		chromedp.Evaluate(listenScript, nil),
	); err != nil {
		return nil, fmt.Errorf("failed to attach scroll listener: %w", err)
	}

	if _, err := b.fetchMetrics(); err != nil {
		return nil, err
	}
	return b, nil
}

// Metrics returns the page geometry. If the tab cannot be queried the last
// known geometry is returned.
func (b *Browser) Metrics() position.Metrics {
	m, err := b.fetchMetrics()
	if err != nil {
		logger.Debug("browser metrics unavailable", "error", err)
		b.mu.Lock()
		defer b.mu.Unlock()
		return b.last
	}
	return m
}

func (b *Browser) fetchMetrics() (position.Metrics, error) {
	var raw browserMetrics
	if err := chromedp.Run(b.ctx, chromedp.Evaluate(metricsScript, &raw)); err != nil {
		return position.Metrics{}, fmt.Errorf("failed to read page metrics: %w", err)
	}

	m := position.Metrics{
		ViewportHeight: raw.Viewport,
		ScrollOffset:   raw.Offset,
		DocumentHeight: raw.Document,
	}
	b.mu.Lock()
	b.last = m
	b.mu.Unlock()
	return m, nil
}

// Subscribe registers fn for scroll and resize events.
func (b *Browser) Subscribe(fn func()) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// notify runs on chromedp's event goroutine and must not block.
func (b *Browser) notify() {
	b.mu.Lock()
	subs := make([]func(), 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s()
	}
}

// ScrollBy scrolls the page by dy pixels.
func (b *Browser) ScrollBy(dy float64) error {
	if err := chromedp.Run(b.ctx, chromedp.Evaluate(fmt.Sprintf(`window.scrollBy(0, %f)`, dy), nil)); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// ScrollToBottom scrolls to the end of the document.
func (b *Browser) ScrollToBottom() error {
	script := `window.scrollTo(0, document.documentElement.scrollHeight)`
	if err := chromedp.Run(b.ctx, chromedp.Evaluate(script, nil)); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

// Inject appends each HTML fragment to the first element matching container.
func (b *Browser) Inject(container string, fragments []string) error {
	sel, err := json.Marshal(container)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(fragments)
	if err != nil {
		return err
	}

	script := fmt.Sprintf(`(() => {
	const c = document.querySelector(%s);
	if (!c) return false;
	for (const html of %s) c.insertAdjacentHTML('beforeend', html);
	return true;
})()`, sel, payload)

	var found bool
	if err := chromedp.Run(b.ctx, chromedp.Evaluate(script, &found)); err != nil {
		return fmt.Errorf("inject failed: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrContainerNotFound, container)
	}

	logger.Debug("injected items", "container", container, "count", len(fragments))
	return nil
}

// Document snapshots the live page as a goquery document with its URL set.
func (b *Browser) Document() (*goquery.Document, error) {
	var html, location string
	if err := chromedp.Run(b.ctx,
		chromedp.OuterHTML("html", &html),
		chromedp.Location(&location),
	); err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if u, err := url.Parse(location); err == nil {
		doc.Url = u
	}
	return doc, nil
}
