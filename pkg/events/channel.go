// Package events provides a small named-event channel with synchronous,
// snapshot-based dispatch.
//
// Event types are fixed when the channel is created. Emitting or subscribing
// to a type the channel does not know about is a programming error and is
// reported as a *RegistrationError.
package events

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// Type names an event, e.g. "load:end".
type Type string

// Event is delivered to listeners.
type Event struct {
	Type    Type
	Payload any
}

// Listener receives events. Listeners are compared by identity, so the same
// listener value cannot be registered twice for one type.
type Listener interface {
	HandleEvent(Event)
}

type funcListener struct {
	fn func(Event)
}

func (l *funcListener) HandleEvent(e Event) { l.fn(e) }

// Func wraps fn as a Listener. Every call returns a new identity; keep the
// returned value to remove the listener later.
func Func(fn func(Event)) Listener {
	return &funcListener{fn: fn}
}

// Registration errors. Check with errors.Is.
var (
	ErrUnknownEventType  = errors.New("unknown event type")
	ErrDuplicateListener = errors.New("listener already registered")
	ErrNilListener       = errors.New("nil listener")
)

// RegistrationError reports misuse of a Channel.
type RegistrationError struct {
	Type Type
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("event %q: %v", e.Type, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Channel is a named-event register.
type Channel struct {
	mu        sync.Mutex
	listeners map[Type][]Listener
	order     []Type
}

// New creates a channel that accepts the given event types.
func New(types ...Type) *Channel {
	c := &Channel{listeners: make(map[Type][]Listener, len(types))}
	for _, t := range types {
		if _, ok := c.listeners[t]; ok {
			continue
		}
		c.listeners[t] = nil
		c.order = append(c.order, t)
	}
	return c
}

// Types returns the registered event types in creation order.
func (c *Channel) Types() []Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Type(nil), c.order...)
}

// On registers l for events of type t.
func (c *Channel) On(t Type, l Listener) error {
	if l == nil {
		return &RegistrationError{Type: t, Err: ErrNilListener}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.listeners[t]
	if !ok {
		return &RegistrationError{Type: t, Err: ErrUnknownEventType}
	}
	if indexOf(current, l) >= 0 {
		return &RegistrationError{Type: t, Err: ErrDuplicateListener}
	}

	c.listeners[t] = append(current, l)
	return nil
}

// Emit invokes every listener registered for t, in registration order.
// The listener set is snapshotted first: listeners added or removed while the
// emission runs take effect from the next emission.
func (c *Channel) Emit(t Type, payload any) error {
	c.mu.Lock()
	current, ok := c.listeners[t]
	if !ok {
		c.mu.Unlock()
		return &RegistrationError{Type: t, Err: ErrUnknownEventType}
	}
	snapshot := make([]Listener, len(current))
	copy(snapshot, current)
	c.mu.Unlock()

	e := Event{Type: t, Payload: payload}
	for _, l := range snapshot {
		l.HandleEvent(e)
	}
	return nil
}

// RemoveListener unregisters l from t. Removing a listener that is not
// registered is not an error.
func (c *Channel) RemoveListener(t Type, l Listener) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, ok := c.listeners[t]
	if !ok {
		return &RegistrationError{Type: t, Err: ErrUnknownEventType}
	}
	if i := indexOf(current, l); i >= 0 {
		// Build a new slice so in-flight snapshots are unaffected.
		next := make([]Listener, 0, len(current)-1)
		next = append(next, current[:i]...)
		c.listeners[t] = append(next, current[i+1:]...)
	}
	return nil
}

// RemoveAllListeners clears the listeners of the given types, or of every
// type when called without arguments.
func (c *Channel) RemoveAllListeners(types ...Type) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(types) == 0 {
		for t := range c.listeners {
			c.listeners[t] = nil
		}
		return nil
	}

	for _, t := range types {
		if _, ok := c.listeners[t]; !ok {
			return &RegistrationError{Type: t, Err: ErrUnknownEventType}
		}
	}
	for _, t := range types {
		c.listeners[t] = nil
	}
	return nil
}

// Listeners returns a copy of the listeners registered for t.
func (c *Channel) Listeners(t Type) []Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Listener(nil), c.listeners[t]...)
}

// ListenerCount returns the number of listeners registered for t.
func (c *Channel) ListenerCount(t Type) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners[t])
}

func indexOf(ls []Listener, l Listener) int {
	if l == nil || !reflect.TypeOf(l).Comparable() {
		return -1
	}
	for i, cur := range ls {
		if reflect.TypeOf(cur) == reflect.TypeOf(l) && cur == l {
			return i
		}
	}
	return -1
}
