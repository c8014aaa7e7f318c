// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors on a dedicated registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	reservations    *prometheus.CounterVec
	releases        *prometheus.CounterVec
	lockEvents      *prometheus.CounterVec
	payments        *prometheus.CounterVec
	idempotentHits  prometheus.Counter
	eventsConsumed  *prometheus.CounterVec
	expiredSwept    prometheus.Counter
	requestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors
func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_reservations_total",
			Help:      "Line-item reservation attempts by outcome.",
		}, []string{"outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_releases_total",
			Help:      "Reservation releases by outcome.",
		}, []string{"outcome"}),
		lockEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_events_total",
			Help:      "Distributed lock interactions by event.",
		}, []string{"event"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payments processed by terminal status.",
		}, []string{"status"}),
		idempotentHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_idempotent_replays_total",
			Help:      "Redelivered payment events answered from the idempotency store.",
		}),
		eventsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Inbound events by topic and result.",
		}, []string{"topic", "result"}),
		expiredSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_expired_total",
			Help:      "Reservations expired by the sweeper.",
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	registry.MustRegister(
		m.reservations,
		m.releases,
		m.lockEvents,
		m.payments,
		m.idempotentHits,
		m.eventsConsumed,
		m.expiredSwept,
		m.requestDuration,
	)

	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Reservation(outcome string) {
	if m != nil {
		m.reservations.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Release(outcome string) {
	if m != nil {
		m.releases.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) LockEvent(event string) {
	if m != nil {
		m.lockEvents.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) Payment(status string) {
	if m != nil {
		m.payments.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IdempotentReplay() {
	if m != nil {
		m.idempotentHits.Inc()
	}
}

func (m *Metrics) EventConsumed(topic, result string) {
	if m != nil {
		m.eventsConsumed.WithLabelValues(topic, result).Inc()
	}
}

func (m *Metrics) ReservationsExpired(n int) {
	if m != nil && n > 0 {
		m.expiredSwept.Add(float64(n))
	}
}

func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m != nil {
		m.requestDuration.WithLabelValues(method, route, status).Observe(seconds)
	}
}
