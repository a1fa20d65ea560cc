// Package metrics exposes the Prometheus metrics of the leaderboard service.
//
// Every method is safe on a nil *Manager, so components can be built without
// metrics in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh results.
const (
	ResultOK       = "ok"
	ResultUpstream = "upstream"
	ResultStore    = "store"
)

type Manager struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	refreshes      *prometheus.CounterVec
	fetchLatency   prometheus.Histogram
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	batchRuns      prometheus.Counter
	batchFailures  prometheus.Counter
	batchLastUsers prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewManager creates the metrics on their own registry, so /metrics only
// shows what this service defines.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "easgit",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}

	auto := promauto.With(m.registry)

	m.refreshes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "refreshes_total",
		Help:      "Statistics refreshes by result (ok, upstream, store).",
	}, []string{"result"})

	m.fetchLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "github_fetch_duration_seconds",
		Help:      "Latency of statistics fetches from GitHub.",
		Buckets:   m.buckets,
	})

	m.cacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "stats_cache_hits_total",
		Help:      "Statistics fetches served from the in-process cache.",
	})
	m.cacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "stats_cache_misses_total",
		Help:      "Statistics fetches that went to GitHub.",
	})

	m.batchRuns = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "batch_runs_total",
		Help:      "Completed batch refresh runs.",
	})
	m.batchFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "batch_user_failures_total",
		Help:      "Users whose refresh failed during a batch run.",
	})
	m.batchLastUsers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "batch_last_run_users",
		Help:      "Number of users processed by the last batch run.",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "status_code"})
	m.httpDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration by route and method.",
		Buckets:   m.buckets,
	}, []string{"route", "method"})

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests that gather metric values.
func (m *Manager) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Manager) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Manager) ObserveFetch(d time.Duration) {
	if m == nil {
		return
	}
	m.fetchLatency.Observe(d.Seconds())
}

func (m *Manager) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Manager) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// RecordBatch records one finished batch run.
func (m *Manager) RecordBatch(users, failures int) {
	if m == nil {
		return
	}
	m.batchRuns.Inc()
	m.batchFailures.Add(float64(failures))
	m.batchLastUsers.Set(float64(users))
}

func (m *Manager) ObserveHTTP(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
