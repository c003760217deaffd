package middleware

import (
	"net"
	"time"

	"github.com/WillKirkmanM/cacheproxy/internal/metrics"
)

// metricsMiddleware adapts Prometheus metrics into Middleware, timing
// each connection's total handling duration the way an HTTP metrics
// middleware times each request.
type metricsMiddleware struct {
	m *metrics.Metrics
}

// NewMetrics constructs the metrics middleware around an existing
// collector rather than creating its own, so counters accumulate
// against the one registry the admin /metrics endpoint exposes.
func NewMetrics(m *metrics.Metrics) Middleware {
	return &metricsMiddleware{m: m}
}

// Wrap instruments each accepted connection, recording active
// connection count and total handling duration.
func (mm *metricsMiddleware) Wrap(next ConnHandler) ConnHandler {
	return func(conn net.Conn) {
		start := time.Now()
		mm.m.IncrementConnections()
		defer mm.m.DecrementConnections()

		next(conn)

		mm.m.RecordConnectionDuration(time.Since(start))
	}
}
