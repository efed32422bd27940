// Package metrics holds the Prometheus collectors shared by the router,
// the subsystem facades, correlated flows and the transport.
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
	// Namespace is the metrics namespace (default: "realmlink").
	Namespace string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for correlation waits.
	Buckets []float64

	// Registry receives the collectors. Default: a fresh registry, so
	// several instances (one per test) never collide.
	Registry *prometheus.Registry
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "realmlink",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}
}

// Metrics is the set of collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	dispatched      *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	streamOverflow  *prometheus.CounterVec
	correlations    *prometheus.CounterVec
	correlationWait *prometheus.HistogramVec
	sends           *prometheus.CounterVec
	connected       prometheus.Gauge
	reconnects      prometheus.Counter
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		registry: config.Registry,

		dispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "messages_dispatched_total",
			Help:        "Inbound messages delivered to subscribers, by opcode",
			ConstLabels: config.ConstLabels,
		}, []string{"opcode"}),

		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "messages_dropped_total",
			Help:        "Inbound messages discarded because they could not be decoded",
			ConstLabels: config.ConstLabels,
		}, []string{"subsystem", "opcode"}),

		streamOverflow: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "stream_overflow_total",
			Help:        "Messages or records dropped because a subscriber buffer was full",
			ConstLabels: config.ConstLabels,
		}, []string{"stream"}),

		correlations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "correlations_total",
			Help:        "Correlated request flows by operation and outcome",
			ConstLabels: config.ConstLabels,
		}, []string{"operation", "outcome"}),

		correlationWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "correlation_wait_seconds",
			Help:        "Time spent waiting for a confirmation",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"operation"}),

		sends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "sends_total",
			Help:        "Outbound commands by opcode and result",
			ConstLabels: config.ConstLabels,
		}, []string{"opcode", "result"}),

		connected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "connected",
			Help:        "1 while the realm connection is up",
			ConstLabels: config.ConstLabels,
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "reconnects_total",
			Help:        "Realm reconnect attempts",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) MessageDispatched(opcode string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(opcode).Inc()
}

func (m *Metrics) MessageDropped(subsystem, opcode string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(subsystem, opcode).Inc()
}

func (m *Metrics) StreamOverflow(stream string) {
	if m == nil {
		return
	}
	m.streamOverflow.WithLabelValues(stream).Inc()
}

// Correlation records the outcome of one correlated wait.
func (m *Metrics) Correlation(operation, outcome string, waited time.Duration) {
	if m == nil {
		return
	}
	m.correlations.WithLabelValues(operation, outcome).Inc()
	m.correlationWait.WithLabelValues(operation).Observe(waited.Seconds())
}

func (m *Metrics) Send(opcode string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sends.WithLabelValues(opcode, result).Inc()
}

func (m *Metrics) SetConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}
