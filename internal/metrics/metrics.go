// Package metrics exposes Prometheus instrumentation for sync sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "dergo").
	Namespace string

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

// Metrics holds the session collectors. A nil *Metrics records nothing.
type Metrics struct {
	messagesSent *prometheus.CounterVec
	bytesSent    prometheus.Counter
	syncs        prometheus.Counter
	syncDuration prometheus.Histogram
	resets       *prometheus.CounterVec
	renames      *prometheus.CounterVec
	results      prometheus.Counter
	connected    prometheus.Gauge
	frame        prometheus.Gauge
	tracked      *prometheus.GaugeVec
}

// New registers the collectors.
func New(opts ...Option) *Metrics {
	cfg := Config{
		Namespace: "dergo",
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)
	ns := cfg.Namespace

	return &Metrics{
		messagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "messages_sent_total",
			Help:      "Messages sent to the renderer by type",
		}, []string{"type"}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bytes_sent_total",
			Help:      "Bytes written to the renderer, headers included",
		}),

		syncs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "syncs_total",
			Help:      "Completed sync ticks",
		}),

		syncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "sync_duration_seconds",
			Help:      "Duration of one sync tick",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),

		resets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "resets_total",
			Help:      "Protocol resets by reason",
		}, []string{"reason"}),

		renames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "renames_total",
			Help:      "Detected renames or duplicates by entity class",
		}, []string{"class"}),

		results: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "render_results_total",
			Help:      "Render results received",
		}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "connected",
			Help:      "1 while the session holds a live connection",
		}),

		frame: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "frame",
			Help:      "Current sync frame counter",
		}),

		tracked: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "tracked_entities",
			Help:      "Entities with an assigned id by class",
		}, []string{"class"}),
	}
}

// MessageSent records one framed message of n bytes.
func (m *Metrics) MessageSent(typ string, n int) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(typ).Inc()
	m.bytesSent.Add(float64(n))
}

// SyncDone records a completed tick.
func (m *Metrics) SyncDone(d time.Duration, frame int32) {
	if m == nil {
		return
	}
	m.syncs.Inc()
	m.syncDuration.Observe(d.Seconds())
	m.frame.Set(float64(frame))
}

// Reset records a protocol reset.
func (m *Metrics) Reset(reason string) {
	if m == nil {
		return
	}
	m.resets.WithLabelValues(reason).Inc()
}

// Rename records a rename or duplicate detection.
func (m *Metrics) Rename(class string) {
	if m == nil {
		return
	}
	m.renames.WithLabelValues(class).Inc()
}

// Result records a received render result.
func (m *Metrics) Result() {
	if m == nil {
		return
	}
	m.results.Inc()
}

// SetConnected updates the connection gauge.
func (m *Metrics) SetConnected(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// SetTracked updates the tracked entity gauge of class.
func (m *Metrics) SetTracked(class string, n int) {
	if m == nil {
		return
	}
	m.tracked.WithLabelValues(class).Set(float64(n))
}

// Handler serves the gathered metrics.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
