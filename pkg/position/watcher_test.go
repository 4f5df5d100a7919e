package position

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeViewport is a hand-driven Viewport that counts subscriptions.
type fakeViewport struct {
	mu            sync.Mutex
	metrics       Metrics
	subs          map[int]func()
	next          int
	subscribes    int
	unsubscribes  int
	metricsCalled int

	// onSubscribe runs after a subscription is registered.
	onSubscribe func()
	// block, when set, holds Metrics until it is closed.
	block chan struct{}
}

func newFakeViewport(m Metrics) *fakeViewport {
	return &fakeViewport{metrics: m, subs: make(map[int]func())}
}

func (v *fakeViewport) Metrics() Metrics {
	v.mu.Lock()
	v.metricsCalled++
	m, block := v.metrics, v.block
	v.mu.Unlock()

	if block != nil {
		<-block
	}
	return m
}

// setSilently changes the layout without notifying subscribers.
func (v *fakeViewport) setSilently(m Metrics) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.metrics = m
}

func (v *fakeViewport) setBlock(ch chan struct{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.block = ch
}

func (v *fakeViewport) Subscribe(fn func()) func() {
	v.mu.Lock()
	id := v.next
	v.next++
	v.subs[id] = fn
	v.subscribes++
	hook := v.onSubscribe
	v.mu.Unlock()

	if hook != nil {
		hook()
	}
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[id]; ok {
			delete(v.subs, id)
			v.unsubscribes++
		}
	}
}

func (v *fakeViewport) scrollTo(offset float64) {
	v.mu.Lock()
	v.metrics.ScrollOffset = offset
	fns := make([]func(), 0, len(v.subs))
	for _, fn := range v.subs {
		fns = append(fns, fn)
	}
	v.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (v *fakeViewport) active() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// longPage is a document well past any threshold at offset 0.
func longPage() Metrics {
	return Metrics{ViewportHeight: 500, ScrollOffset: 0, DocumentHeight: 5000}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestValid(t *testing.T) {
	tests := []struct {
		name      string
		metrics   Metrics
		threshold float64
		want      bool
	}{
		{"far from bottom", Metrics{500, 0, 5000}, 150, false},
		{"inside threshold", Metrics{500, 4400, 5000}, 150, true},
		{"exactly at threshold", Metrics{500, 4350, 5000}, 150, true},
		{"just outside threshold", Metrics{500, 4349, 5000}, 150, false},
		{"short document", Metrics{800, 0, 300}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := New(newFakeViewport(tt.metrics), tt.threshold, func() {})
			if got := w.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWatch_ValidPositionCallsImmediatelyWithoutArming(t *testing.T) {
	vp := newFakeViewport(Metrics{ViewportHeight: 800, DocumentHeight: 300})
	calls := 0
	w := New(vp, 100, func() { calls++ })

	w.Watch()

	if calls != 1 {
		t.Errorf("expected callback once, got %d", calls)
	}
	if w.IsWatching() {
		t.Error("watcher should not be armed when already valid")
	}
	if vp.subscribes != 0 {
		t.Errorf("expected no subscription, got %d", vp.subscribes)
	}
}

func TestWatch_InvalidPositionArms(t *testing.T) {
	vp := newFakeViewport(longPage())
	w := New(vp, 100, func() { t.Error("callback should not run") })

	w.Watch()

	if !w.IsWatching() {
		t.Error("expected watcher to be armed")
	}
	if vp.active() != 1 {
		t.Errorf("expected one subscription, got %d", vp.active())
	}
}

func TestWatch_Idempotent(t *testing.T) {
	vp := newFakeViewport(longPage())
	w := New(vp, 100, func() {})

	w.Watch()
	calls := vp.metricsCalled
	w.Watch()
	w.Watch()

	if vp.subscribes != 1 {
		t.Errorf("expected exactly one subscription, got %d", vp.subscribes)
	}
	if vp.metricsCalled != calls {
		t.Error("re-arming an armed watcher should not re-evaluate position")
	}
}

func TestStopWatching(t *testing.T) {
	vp := newFakeViewport(longPage())
	w := New(vp, 100, func() {})

	// Disarming a disarmed watcher does nothing.
	w.StopWatching()
	if vp.unsubscribes != 0 {
		t.Errorf("expected no unsubscribe, got %d", vp.unsubscribes)
	}

	w.Watch()
	w.StopWatching()
	w.StopWatching()

	if w.IsWatching() {
		t.Error("expected watcher disarmed")
	}
	if vp.unsubscribes != 1 {
		t.Errorf("expected exactly one unsubscribe, got %d", vp.unsubscribes)
	}
	if vp.active() != 0 {
		t.Errorf("expected no active subscriptions, got %d", vp.active())
	}
}

func TestArmDisarmSequence_AtMostOneSubscription(t *testing.T) {
	vp := newFakeViewport(longPage())
	w := New(vp, 100, func() {})

	ops := []func(){w.Watch, w.Watch, w.StopWatching, w.Watch, w.StopWatching, w.StopWatching, w.Watch, w.Watch}
	for i, op := range ops {
		op()
		if n := vp.active(); n > 1 {
			t.Fatalf("step %d: %d active subscriptions", i, n)
		}
	}
	if vp.active() != 1 {
		t.Errorf("expected final state armed with one subscription, got %d", vp.active())
	}
}

func TestScroll_TriggersOnceAndDisarms(t *testing.T) {
	vp := newFakeViewport(longPage())
	var calls atomic.Int32
	w := New(vp, 150, func() { calls.Add(1) }, WithDebounce(10*time.Millisecond))

	w.Watch()
	vp.scrollTo(4400)

	waitFor(t, func() bool { return calls.Load() == 1 })

	if w.IsWatching() {
		t.Error("watcher should disarm before invoking callback")
	}
	if vp.active() != 0 {
		t.Errorf("expected subscription removed, got %d", vp.active())
	}

	// Further scrolling without rearm never fires again.
	vp.scrollTo(4500)
	time.Sleep(40 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected callback once per arm cycle, got %d", calls.Load())
	}
}

func TestScroll_InvalidPositionStaysArmed(t *testing.T) {
	vp := newFakeViewport(longPage())
	var calls atomic.Int32
	w := New(vp, 150, func() { calls.Add(1) }, WithDebounce(10*time.Millisecond))

	w.Watch()
	vp.scrollTo(1000)
	time.Sleep(40 * time.Millisecond)

	if calls.Load() != 0 {
		t.Errorf("expected no callback, got %d", calls.Load())
	}
	if !w.IsWatching() {
		t.Error("watcher should remain armed")
	}
}

func TestScroll_DebounceCoalescesBursts(t *testing.T) {
	vp := newFakeViewport(longPage())
	var calls atomic.Int32
	w := New(vp, 150, func() { calls.Add(1) }, WithDebounce(30*time.Millisecond))

	w.Watch()
	before := vp.metricsCalled

	for i := 0; i < 20; i++ {
		vp.scrollTo(float64(4400 + i))
	}

	waitFor(t, func() bool { return calls.Load() == 1 })

	vp.mu.Lock()
	evaluations := vp.metricsCalled - before
	vp.mu.Unlock()
	if evaluations != 1 {
		t.Errorf("expected one evaluation after the burst, got %d", evaluations)
	}
}

func TestStopWatching_CancelsPendingEvaluation(t *testing.T) {
	vp := newFakeViewport(longPage())
	var calls atomic.Int32
	w := New(vp, 150, func() { calls.Add(1) }, WithDebounce(20*time.Millisecond))

	w.Watch()
	vp.scrollTo(4400)
	w.StopWatching()

	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("expected pending evaluation dropped, got %d callbacks", calls.Load())
	}
}

func TestRearm_AfterTrigger(t *testing.T) {
	vp := newFakeViewport(longPage())
	var calls atomic.Int32
	w := New(vp, 150, func() { calls.Add(1) }, WithDebounce(10*time.Millisecond))

	w.Watch()
	vp.scrollTo(4400)
	waitFor(t, func() bool { return calls.Load() == 1 })

	// Content grows, as after inserting a new page.
	vp.mu.Lock()
	vp.metrics.DocumentHeight = 10000
	vp.mu.Unlock()

	w.Watch()
	if !w.IsWatching() {
		t.Fatal("expected rearm after content grew")
	}
	vp.scrollTo(9400)
	waitFor(t, func() bool { return calls.Load() == 2 })
}

func TestMetrics_Remaining(t *testing.T) {
	m := Metrics{ViewportHeight: 500, ScrollOffset: 1000, DocumentHeight: 2000}
	if got := m.Remaining(); got != 500 {
		t.Errorf("Remaining() = %v, want 500", got)
	}
}

func TestWatch_ChangeWhileSubscribingIsNotLost(t *testing.T) {
	vp := newFakeViewport(longPage())
	// The layout reaches the end between the first check and the
	// subscription, and no notification is sent for it.
	vp.onSubscribe = func() {
		vp.setSilently(Metrics{ViewportHeight: 500, ScrollOffset: 4500, DocumentHeight: 5000})
	}

	var calls atomic.Int32
	w := New(vp, 100, func() { calls.Add(1) })
	w.Watch()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected callback once, got %d", got)
	}
	if w.IsWatching() {
		t.Error("expected watcher disarmed after firing")
	}
	if vp.active() != 0 {
		t.Errorf("expected no active subscriptions, got %d", vp.active())
	}
}

func TestNotify_DoesNotWaitForSlowMetrics(t *testing.T) {
	vp := newFakeViewport(longPage())
	var calls atomic.Int32
	w := New(vp, 100, func() { calls.Add(1) }, WithDebounce(time.Millisecond))
	w.Watch()

	// The debounced evaluation now stalls inside Metrics.
	release := make(chan struct{})
	vp.setBlock(release)
	vp.scrollTo(4500)
	waitFor(t, func() bool {
		vp.mu.Lock()
		defer vp.mu.Unlock()
		return vp.metricsCalled >= 3
	})

	done := make(chan struct{})
	go func() {
		vp.scrollTo(4500)
		_ = w.IsWatching()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notification blocked behind a metrics read")
	}

	vp.setBlock(nil)
	close(release)
	waitFor(t, func() bool { return calls.Load() == 1 })
}
