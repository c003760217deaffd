package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics collection for the proxy.
// Tracks connection counts, durations, and cache core behavior for
// monitoring: connection-level counters and histograms alongside
// cache-specific gauges and counters making C1/C3's behavior (hits,
// misses, evictions, bytes served, origin dial failures) observable.
type Metrics struct {
	connectionsTotal     prometheus.Counter
	connectionDuration   prometheus.Histogram
	activeConnections    prometheus.Gauge
	bytesForwardedTotal  prometheus.Counter

	cacheEntries         prometheus.Gauge
	cacheBytes           prometheus.Gauge
	cacheHitsTotal       prometheus.Counter
	cacheMissesTotal     prometheus.Counter
	cacheEvictionsTotal  prometheus.Counter
	originDialErrorsTotal prometheus.Counter
}

// NewMetrics creates new metrics collector with Prometheus instruments
// Registers all metrics with default registry for HTTP exposition
func NewMetrics() *Metrics {
	m := &Metrics{
		connectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_connections_total",
			Help: "Total number of accepted client connections",
		}),
		connectionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "proxy_connection_duration_seconds",
			Help:    "Time spent handling a single client connection",
			Buckets: prometheus.DefBuckets,
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_active_connections",
			Help: "Number of connections currently being handled",
		}),
		bytesForwardedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_bytes_forwarded_total",
			Help: "Total bytes forwarded to clients, hits and misses combined",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_cache_entries",
			Help: "Number of entries currently held in the cache index",
		}),
		cacheBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proxy_cache_bytes",
			Help: "Approximate total bytes held across all cache entries",
		}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_cache_hits_total",
			Help: "Total number of requests served directly from the cache",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_cache_misses_total",
			Help: "Total number of requests that required an origin fetch",
		}),
		cacheEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_cache_evictions_total",
			Help: "Total number of entries evicted from the cache index",
		}),
		originDialErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "proxy_origin_dial_errors_total",
			Help: "Total number of failures acquiring a pooled origin connection",
		}),
	}

	prometheus.MustRegister(
		m.connectionsTotal,
		m.connectionDuration,
		m.activeConnections,
		m.bytesForwardedTotal,
		m.cacheEntries,
		m.cacheBytes,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.cacheEvictionsTotal,
		m.originDialErrorsTotal,
	)

	return m
}

// IncrementConnections increments active connection count
func (m *Metrics) IncrementConnections() {
	m.connectionsTotal.Inc()
	m.activeConnections.Inc()
}

// DecrementConnections decrements active connection count
func (m *Metrics) DecrementConnections() {
	m.activeConnections.Dec()
}

// RecordConnectionDuration observes how long a connection took to handle.
func (m *Metrics) RecordConnectionDuration(d time.Duration) {
	m.connectionDuration.Observe(d.Seconds())
}

// RecordCacheHit records a request served directly from the cache.
func (m *Metrics) RecordCacheHit() {
	m.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a request that required an origin fetch.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMissesTotal.Inc()
}

// RecordCacheEviction records an entry being evicted from the index.
func (m *Metrics) RecordCacheEviction() {
	m.cacheEvictionsTotal.Inc()
}

// RecordOriginDialError records a failed attempt to acquire a pooled
// origin connection.
func (m *Metrics) RecordOriginDialError() {
	m.originDialErrorsTotal.Inc()
}

// RecordBytesForwarded adds n bytes to the total forwarded counter.
func (m *Metrics) RecordBytesForwarded(n int) {
	m.bytesForwardedTotal.Add(float64(n))
}

// SetCacheStats updates the cache size gauges from the current index
// state. Intended to be polled on an interval rather than updated
// per-operation, since neither gauge needs sub-second freshness.
func (m *Metrics) SetCacheStats(entries int, bytes int) {
	m.cacheEntries.Set(float64(entries))
	m.cacheBytes.Set(float64(bytes))
}

// Handler returns HTTP handler for Prometheus metrics exposition
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// ListenAndServe starts a small net/http admin server exposing /metrics.
// This is the one place the proxy uses net/http rather than raw
// sockets: Prometheus exposition is conventionally HTTP, independent of
// the data plane's own transport.
func (m *Metrics) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
