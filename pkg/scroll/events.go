package scroll

import (
	"github.com/jmylchreest/feedscroll/pkg/events"
	"github.com/jmylchreest/feedscroll/pkg/parser"
)

// Lifecycle events emitted by an Engine.
const (
	EventLoadStart events.Type = "load:start"
	EventLoadEnd   events.Type = "load:end"
	EventFinished  events.Type = "finished"
	EventLoadReady events.Type = "load:ready"
	EventLoadError events.Type = "load:error"
)

// EventTypes lists every event an Engine emits.
var EventTypes = []events.Type{
	EventLoadStart,
	EventLoadEnd,
	EventFinished,
	EventLoadReady,
	EventLoadError,
}

// LoadEnd is the payload of EventLoadEnd.
type LoadEnd struct {
	Items []parser.Item
	Page  int
	URL   string

	// Resume rearms the engine's position watcher. Only the first call has
	// any effect.
	Resume func()
}

// LoadError is the payload of EventLoadError.
type LoadError struct {
	URL string
	Err error
}

func (e LoadError) Error() string {
	return e.Err.Error()
}

func (e LoadError) Unwrap() error {
	return e.Err
}

// On registers a listener for one of the engine's events.
func (e *Engine) On(t events.Type, l events.Listener) error {
	return e.events.On(t, l)
}

// RemoveListener unregisters a listener.
func (e *Engine) RemoveListener(t events.Type, l events.Listener) error {
	return e.events.RemoveListener(t, l)
}

// RemoveAllListeners clears the given types, or every type when none is given.
func (e *Engine) RemoveAllListeners(types ...events.Type) error {
	return e.events.RemoveAllListeners(types...)
}

// ListenerCount returns the number of listeners for t.
func (e *Engine) ListenerCount(t events.Type) int {
	return e.events.ListenerCount(t)
}

// OnLoadStart registers fn for EventLoadStart.
func (e *Engine) OnLoadStart(fn func()) (events.Listener, error) {
	return e.onFunc(EventLoadStart, func(events.Event) { fn() })
}

// OnLoadEnd registers fn for EventLoadEnd.
func (e *Engine) OnLoadEnd(fn func(LoadEnd)) (events.Listener, error) {
	return e.onFunc(EventLoadEnd, func(ev events.Event) {
		if p, ok := ev.Payload.(LoadEnd); ok {
			fn(p)
		}
	})
}

// OnFinished registers fn for EventFinished.
func (e *Engine) OnFinished(fn func()) (events.Listener, error) {
	return e.onFunc(EventFinished, func(events.Event) { fn() })
}

// OnLoadReady registers fn for EventLoadReady.
func (e *Engine) OnLoadReady(fn func()) (events.Listener, error) {
	return e.onFunc(EventLoadReady, func(events.Event) { fn() })
}

// OnLoadError registers fn for EventLoadError.
func (e *Engine) OnLoadError(fn func(LoadError)) (events.Listener, error) {
	return e.onFunc(EventLoadError, func(ev events.Event) {
		if p, ok := ev.Payload.(LoadError); ok {
			fn(p)
		}
	})
}

func (e *Engine) onFunc(t events.Type, fn func(events.Event)) (events.Listener, error) {
	l := events.Func(fn)
	if err := e.events.On(t, l); err != nil {
		return nil, err
	}
	return l, nil
}
