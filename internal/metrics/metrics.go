// Package metrics exposes Prometheus metrics for scroll engines.
//
// Metrics:
//   - feedscroll_loads_total{result} (Counter): load attempts by result (success, error)
//   - feedscroll_items_total (Counter): items delivered by load:end
//   - feedscroll_load_duration_seconds (Histogram): time from load:start to load:end or load:error
//   - feedscroll_page (Gauge): last page delivered
//   - feedscroll_finished (Gauge): 1 once the last page has been reached
//   - feedscroll_ready_total (Counter): threshold crossings under manual loading
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmylchreest/feedscroll/pkg/scroll"
)

// Collector holds the metrics for one process in its own registry.
type Collector struct {
	registry *prometheus.Registry

	loadsTotal   *prometheus.CounterVec
	itemsTotal   prometheus.Counter
	loadDuration prometheus.Histogram
	page         prometheus.Gauge
	finished     prometheus.Gauge
	readyTotal   prometheus.Counter

	mu      sync.Mutex
	started time.Time
}

// New creates a collector with a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		loadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedscroll_loads_total",
			Help: "Page load attempts by result",
		}, []string{"result"}),
		itemsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "feedscroll_items_total",
			Help: "Items delivered by completed loads",
		}),
		loadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedscroll_load_duration_seconds",
			Help:    "Duration of page loads",
			Buckets: prometheus.DefBuckets,
		}),
		page: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedscroll_page",
			Help: "Last page delivered",
		}),
		finished: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedscroll_finished",
			Help: "1 once no further page exists",
		}),
		readyTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "feedscroll_ready_total",
			Help: "Threshold crossings awaiting a manual load",
		}),
	}
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Observe subscribes the collector to an engine's events.
func (c *Collector) Observe(e *scroll.Engine) error {
	if e.Finished() {
		c.finished.Set(1)
	}
	c.page.Set(float64(e.Page()))

	if _, err := e.OnLoadStart(c.loadStarted); err != nil {
		return err
	}
	if _, err := e.OnLoadEnd(c.loadEnded); err != nil {
		return err
	}
	if _, err := e.OnLoadError(c.loadFailed); err != nil {
		return err
	}
	if _, err := e.OnFinished(func() { c.finished.Set(1) }); err != nil {
		return err
	}
	if _, err := e.OnLoadReady(func() { c.readyTotal.Inc() }); err != nil {
		return err
	}
	return nil
}

func (c *Collector) loadStarted() {
	c.mu.Lock()
	c.started = time.Now()
	c.mu.Unlock()
}

func (c *Collector) loadEnded(p scroll.LoadEnd) {
	c.observeDuration()
	c.loadsTotal.WithLabelValues("success").Inc()
	c.itemsTotal.Add(float64(len(p.Items)))
	c.page.Set(float64(p.Page))
}

func (c *Collector) loadFailed(scroll.LoadError) {
	c.observeDuration()
	c.loadsTotal.WithLabelValues("error").Inc()
}

func (c *Collector) observeDuration() {
	c.mu.Lock()
	started := c.started
	c.started = time.Time{}
	c.mu.Unlock()

	if !started.IsZero() {
		c.loadDuration.Observe(time.Since(started).Seconds())
	}
}
