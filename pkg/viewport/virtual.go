// Package viewport provides position.Viewport implementations: an in-memory
// Virtual viewport for headless and terminal front-ends, and a Browser
// viewport backed by a live Chrome tab.
package viewport

import (
	"sync"

	"github.com/jmylchreest/feedscroll/pkg/position"
)

// Virtual is a viewport whose geometry is set by its owner. Every change
// notifies subscribers, outside the lock.
type Virtual struct {
	mu       sync.Mutex
	height   float64
	offset   float64
	document float64
	subs     map[uint64]func()
	nextID   uint64
}

// NewVirtual creates a viewport of the given height over a document.
func NewVirtual(height, documentHeight float64) *Virtual {
	return &Virtual{
		height:   height,
		document: documentHeight,
		subs:     make(map[uint64]func()),
	}
}

// Metrics returns the current geometry.
func (v *Virtual) Metrics() position.Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return position.Metrics{
		ViewportHeight: v.height,
		ScrollOffset:   v.offset,
		DocumentHeight: v.document,
	}
}

// Subscribe registers fn for geometry changes.
func (v *Virtual) Subscribe(fn func()) func() {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.nextID
	v.nextID++
	v.subs[id] = fn

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.subs, id)
	}
}

// Subscribers returns the number of active subscriptions.
func (v *Virtual) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// ScrollTo moves the top of the viewport to offset, clamped to the document.
func (v *Virtual) ScrollTo(offset float64) {
	v.update(func() {
		v.offset = offset
	})
}

// ScrollBy moves the viewport by delta pixels.
func (v *Virtual) ScrollBy(delta float64) {
	v.update(func() {
		v.offset += delta
	})
}

// ScrollToBottom moves the viewport to the end of the document.
func (v *Virtual) ScrollToBottom() {
	v.update(func() {
		v.offset = v.document
	})
}

// Resize changes the viewport height.
func (v *Virtual) Resize(height float64) {
	v.update(func() {
		v.height = height
	})
}

// SetDocumentHeight changes the document height, as after inserting content.
func (v *Virtual) SetDocumentHeight(h float64) {
	v.update(func() {
		v.document = h
	})
}

// Grow extends the document by delta pixels.
func (v *Virtual) Grow(delta float64) {
	v.update(func() {
		v.document += delta
	})
}

// Update sets all three dimensions at once with a single notification.
func (v *Virtual) Update(m position.Metrics) {
	v.update(func() {
		v.height = m.ViewportHeight
		v.offset = m.ScrollOffset
		v.document = m.DocumentHeight
	})
}

// AtBottom reports whether the viewport shows the end of the document.
func (v *Virtual) AtBottom() bool {
	return v.Metrics().Remaining() <= 0
}

func (v *Virtual) update(fn func()) {
	v.mu.Lock()
	fn()
	v.clampLocked()
	subs := make([]func(), 0, len(v.subs))
	for _, s := range v.subs {
		subs = append(subs, s)
	}
	v.mu.Unlock()

	for _, s := range subs {
		s()
	}
}

func (v *Virtual) clampLocked() {
	if v.height < 0 {
		v.height = 0
	}
	if v.document < 0 {
		v.document = 0
	}
	maxOffset := v.document - v.height
	if maxOffset < 0 {
		maxOffset = 0
	}
	if v.offset > maxOffset {
		v.offset = maxOffset
	}
	if v.offset < 0 {
		v.offset = 0
	}
}
