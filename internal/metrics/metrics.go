// ABOUTME: Prometheus metrics for refreshes, mutation pushes and eviction
// ABOUTME: A nil *Metrics is valid and records nothing

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ttcache"

// Refresh outcomes.
const (
	ResultHit     = "hit"
	ResultFetched = "fetched"
	ResultOffline = "offline"
	ResultFailed  = "failed"
)

// Push outcomes.
const (
	PushOK      = "ok"
	PushIgnored = "ignored"
	PushFailed  = "failed"
)

// Metrics owns a registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	pushTotal       *prometheus.CounterVec
	pending         prometheus.Gauge
	evicted         prometheus.Counter
	online          prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Refresh attempts by scope kind and result",
			},
			[]string{"scope", "result"},
		),
		refreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "refresh_duration_seconds",
				Help:      "Duration of refreshes that reached the server",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scope"},
		),
		pushTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_pushed_total",
				Help:      "Pending mutation push attempts by kind and result",
			},
			[]string{"kind", "result"},
		),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_mutations",
			Help:      "Mutations waiting to be pushed",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_evicted_total",
			Help:      "Articles deleted by retention and cleanup",
		}),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_online",
			Help:      "Server reachability (1 = online, 0 = offline)",
		}),
	}
	m.registry.MustRegister(
		m.refreshTotal, m.refreshDuration, m.pushTotal, m.pending, m.evicted, m.online,
		collectors.NewGoCollector(),
	)
	return m
}

// RecordRefresh records one refresh outcome. d is only observed for
// refreshes that reached the server.
func (m *Metrics) RecordRefresh(scope, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(scope, result).Inc()
	if result == ResultFetched || result == ResultFailed {
		m.refreshDuration.WithLabelValues(scope).Observe(d.Seconds())
	}
}

// RecordPush records one mutation push outcome.
func (m *Metrics) RecordPush(kind, result string) {
	if m == nil {
		return
	}
	m.pushTotal.WithLabelValues(kind, result).Inc()
}

// SetPending sets the queue length.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// AddEvicted counts deleted articles.
func (m *Metrics) AddEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evicted.Add(float64(n))
}

// SetOnline records server reachability.
func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	if online {
		m.online.Set(1)
	} else {
		m.online.Set(0)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
