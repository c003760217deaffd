package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/WillKirkmanM/cacheproxy/internal/cache"
	"github.com/WillKirkmanM/cacheproxy/internal/config"
	"github.com/WillKirkmanM/cacheproxy/internal/logging"
	"github.com/WillKirkmanM/cacheproxy/internal/metrics"
	"github.com/WillKirkmanM/cacheproxy/internal/middleware"
	"github.com/WillKirkmanM/cacheproxy/internal/originpool"
)

// Server is a raw-socket accept loop: instead of an *http.Server with a
// Handler field, it owns a net.Listener and a chain of ConnHandler
// middleware wrapping the core request handler. A background ticker
// drives origin-pool idle sweeps alongside the Start(ctx)/Shutdown(ctx)
// lifecycle.
type Server struct {
	listener   net.Listener
	cfg        *config.Config
	pool       *originpool.Pool
	cache      *cache.Cache
	middleware []middleware.Middleware
	handler    ConnHandler

	wg       sync.WaitGroup
	closeMu  sync.Mutex
	closed   bool
}

// New creates a server instance using factory-style dependency
// injection, wiring the cache core, the origin connection pool, and the
// middleware chain (rate limiting, then metrics) ahead of the core
// request handler — order matters: rate limiting runs first so an
// over-limit client never reaches the cache or an origin dial.
func New(cfg *config.Config, c *cache.Cache, pool *originpool.Pool, logger *logging.Logger, m *metrics.Metrics) *Server {
	h := NewHandler(c, pool, cfg, logger, m)

	chain := []middleware.Middleware{
		middleware.NewRateLimiter(cfg.RateLimit),
		middleware.NewMetrics(m),
	}

	var handler ConnHandler = h.Handle
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i].Wrap(handler)
	}

	return &Server{
		cfg:        cfg,
		pool:       pool,
		cache:      c,
		middleware: chain,
		handler:    handler,
	}
}

// Start binds the listener and runs the accept loop until ctx is
// cancelled or the listener is closed by Shutdown. Each accepted
// connection is served by its own goroutine, tracked by an internal
// WaitGroup that Shutdown drains before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Server.ListenAddr, err)
	}
	s.listener = ln

	go s.sweepIdleOrigins(ctx)

	for {
		conn, err := ln.Accept()
		if err != nil {
			s.closeMu.Lock()
			closed := s.closed
			s.closeMu.Unlock()
			if closed {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler(conn)
		}()
	}
}

// Shutdown closes the listener so Start's accept loop exits, then waits
// for in-flight connections to finish or ctx to expire, and finally
// closes every pooled origin connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeMu.Lock()
	s.closed = true
	s.closeMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	s.pool.CloseAll()
	return nil
}

// sweepIdleOrigins periodically drops origin connections that have sat
// idle longer than the configured IdleTimeout.
func (s *Server) sweepIdleOrigins(ctx context.Context) {
	interval := s.cfg.OriginPool.IdleTimeout / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pool.SweepIdle(s.cfg.OriginPool.IdleTimeout)
		case <-ctx.Done():
			return
		}
	}
}
