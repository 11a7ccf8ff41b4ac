// Package metrics exports session activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/bytestorm/internal/session"
)

// Metrics records session activity. It implements session.Observer and
// can be shared by any number of sessions.
type Metrics struct {
	registry *prometheus.Registry

	changes       *prometheus.CounterVec
	changeBytes   *prometheus.CounterVec
	notifications prometheus.Counter
	failures      prometheus.Counter
	saves         *prometheus.CounterVec
	savedBytes    prometheus.Counter
	saveDuration  prometheus.Histogram
}

var _ session.Observer = (*Metrics)(nil)

// New creates a metrics set registered on its own registry. Every
// metric name is prefixed with namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		changes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "changes_total",
			Help:      "Changes applied to sessions, by kind.",
		}, []string{"kind"}),
		changeBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_bytes_total",
			Help:      "Bytes inserted, overwritten or deleted, by kind.",
		}, []string{"kind"}),
		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewport_notifications_total",
			Help:      "Viewport callbacks run.",
		}),
		failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewport_callback_failures_total",
			Help:      "Viewport callbacks that panicked or failed.",
		}),
		saves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saves_total",
			Help:      "Save attempts, by result.",
		}, []string{"result"}),
		savedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_bytes_total",
			Help:      "Bytes written by successful saves.",
		}),
		saveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "save_duration_seconds",
			Help:      "Duration of saves.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
	}
}

// ChangeApplied implements session.Observer.
func (m *Metrics) ChangeApplied(kind session.ChangeKind, length int64) {
	m.changes.WithLabelValues(kind.String()).Inc()
	m.changeBytes.WithLabelValues(kind.String()).Add(float64(length))
}

// ViewportsNotified implements session.Observer.
func (m *Metrics) ViewportsNotified(n int) {
	m.notifications.Add(float64(n))
}

// CallbackFailed implements session.Observer.
func (m *Metrics) CallbackFailed() {
	m.failures.Inc()
}

// Saved implements session.Observer.
func (m *Metrics) Saved(bytes int64, elapsed time.Duration, err error) {
	m.saveDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.saves.WithLabelValues("error").Inc()
		return
	}
	m.saves.WithLabelValues("ok").Inc()
	m.savedBytes.Add(float64(bytes))
}

// TrackSessions exports the value of count as the number of open
// sessions.
func (m *Metrics) TrackSessions(namespace string, count func() int) {
	promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_sessions",
		Help:      "Sessions currently open.",
	}, func() float64 {
		return float64(count())
	})
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
