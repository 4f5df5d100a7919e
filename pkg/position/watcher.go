// Package position watches a viewport's scroll position and fires a callback
// once the visible area comes within a threshold of the end of the content.
package position

import (
	"sync"
	"time"

	"github.com/jmylchreest/feedscroll/internal/logger"
)

// DefaultDebounce is the quiescence window applied to raw scroll notifications.
const DefaultDebounce = 100 * time.Millisecond

// Metrics is a layout snapshot, in pixels.
type Metrics struct {
	ViewportHeight float64
	ScrollOffset   float64
	DocumentHeight float64
}

// Remaining returns the distance between the bottom of the viewport and the
// end of the document.
func (m Metrics) Remaining() float64 {
	return m.DocumentHeight - (m.ViewportHeight + m.ScrollOffset)
}

// Viewport is the platform surface being scrolled.
type Viewport interface {
	// Metrics returns the current layout.
	Metrics() Metrics

	// Subscribe registers fn for raw scroll and resize notifications and
	// returns a function that removes the subscription.
	Subscribe(fn func()) (unsubscribe func())
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiescence window for scroll notifications.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// Watcher invokes its callback at most once per arm/disarm cycle.
type Watcher struct {
	viewport  Viewport
	threshold float64
	callback  func()
	debounce  time.Duration

	watchMu sync.Mutex // serializes Watch

	mu          sync.Mutex
	armed       bool
	unsubscribe func()
	timer       *time.Timer
	generation  uint64
}

// New creates a watcher. threshold is the distance from the end of the
// document, in pixels, at which callback fires.
func New(vp Viewport, threshold float64, callback func(), opts ...Option) *Watcher {
	w := &Watcher{
		viewport:  vp,
		threshold: threshold,
		callback:  callback,
		debounce:  DefaultDebounce,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Threshold returns the configured distance from the end of the document.
func (w *Watcher) Threshold() float64 {
	return w.threshold
}

// Valid reports whether the current position has crossed the threshold.
func (w *Watcher) Valid() bool {
	m := w.viewport.Metrics()
	return m.ViewportHeight+m.ScrollOffset >= m.DocumentHeight-w.threshold
}

// Watch arms the watcher. If the position is already past the threshold the
// callback runs immediately and the watcher stays disarmed.
func (w *Watcher) Watch() {
	w.watchMu.Lock()
	fire := w.arm()
	w.watchMu.Unlock()

	if fire {
		logger.Debug("position already within threshold", "threshold", w.threshold)
		w.callback()
	}
}

// arm subscribes to the viewport and reports whether the callback should run
// instead. Viewport metrics are read without holding mu.
func (w *Watcher) arm() bool {
	if w.IsWatching() {
		return false
	}
	if w.Valid() {
		return true
	}

	w.mu.Lock()
	w.armed = true
	w.generation++
	gen := w.generation
	w.mu.Unlock()

	unsubscribe := w.viewport.Subscribe(func() { w.notify(gen) })

	w.mu.Lock()
	if !w.armed || gen != w.generation {
		// Stopped while subscribing.
		w.mu.Unlock()
		unsubscribe()
		return false
	}
	w.unsubscribe = unsubscribe
	w.mu.Unlock()

	// A change between the first check and Subscribe sent no notification.
	if !w.Valid() {
		logger.Debug("position watcher armed", "threshold", w.threshold, "debounce", w.debounce)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.armed || gen != w.generation {
		return false
	}
	w.disarmLocked()
	return true
}

// StopWatching disarms the watcher and drops any pending evaluation.
func (w *Watcher) StopWatching() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed {
		return
	}
	w.disarmLocked()
	logger.Debug("position watcher disarmed")
}

// IsWatching reports whether the watcher is armed.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// notify handles a raw notification by restarting the debounce timer.
func (w *Watcher) notify(gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed || gen != w.generation {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.resolve(gen) })
}

// resolve evaluates the position once scrolling has paused.
func (w *Watcher) resolve(gen uint64) {
	if !w.current(gen) {
		return
	}
	if !w.Valid() {
		return
	}

	w.mu.Lock()
	if !w.armed || gen != w.generation {
		w.mu.Unlock()
		return
	}
	w.disarmLocked()
	w.mu.Unlock()

	logger.Debug("position crossed threshold", "threshold", w.threshold)
	w.callback()
}

// current reports whether gen is still the armed generation.
func (w *Watcher) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed && gen == w.generation
}

func (w *Watcher) disarmLocked() {
	w.armed = false
	w.generation++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}
