package server

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/WillKirkmanM/cacheproxy/internal/cache"
	"github.com/WillKirkmanM/cacheproxy/internal/config"
	"github.com/WillKirkmanM/cacheproxy/internal/logging"
	"github.com/WillKirkmanM/cacheproxy/internal/metrics"
	"github.com/WillKirkmanM/cacheproxy/internal/middleware"
	"github.com/WillKirkmanM/cacheproxy/internal/originpool"
	"github.com/WillKirkmanM/cacheproxy/internal/tracing"
)

// Handler drives one accepted connection through request parsing,
// cache lookup, and — on a miss — the fetch-and-stream pipeline against
// a pooled origin connection. It is the control flow the original's
// proxy_serve_client describes: parse method, validate version, parse
// URL, split host/path/port, decide cacheability, dial/pool, fetch.
type Handler struct {
	cache   *cache.Cache
	pool    *originpool.Pool
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewHandler wires a connection handler from its dependencies.
func NewHandler(c *cache.Cache, pool *originpool.Pool, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) *Handler {
	return &Handler{cache: c, pool: pool, cfg: cfg, logger: logger, metrics: m}
}

// ConnHandler is the connection-level analogue of http.Handler: the
// proxy's wire protocol is raw TCP, so there is no http.Handler to
// decorate with middleware.
type ConnHandler = middleware.ConnHandler

// Handle serves a single accepted connection end-to-end, closing it
// when finished. Errors at any stage end the connection; there is no
// persistent-connection keep-alive on the client side — only the origin
// side pools connections.
func (h *Handler) Handle(conn net.Conn) {
	defer conn.Close()

	reqID := uuid.NewString()
	log := h.logger.WithFields(slog.String("request_id", reqID))

	log.ConnLogger("forward.request", conn, func(ctx context.Context, log *logging.Logger) {
		h.serve(ctx, conn, log)
	})
}

func (h *Handler) serve(ctx context.Context, conn net.Conn, log *logging.Logger) {
	span := trace.SpanFromContext(ctx)

	br := bufio.NewReader(conn)
	requestLine, headers, raw, err := readRequestHead(br, h.cfg.Server.MaxHeaderBytes)
	if err != nil {
		return
	}

	method, rawURL, version, err := parseRequestLine(requestLine)
	if err != nil {
		writeStatusLine(conn, "400 Bad Request")
		return
	}
	span.SetAttributes(tracing.HTTPMethodAttribute(method), tracing.HTTPURLAttribute(rawURL))
	if !isVersionSupported(version) {
		writeStatusLine(conn, "400 Bad Request")
		return
	}
	if !isMethodSupported(method) {
		writeStatusLine(conn, "501 Not Implemented")
		return
	}

	host, path, port := splitURL(rawURL)
	if host == "" {
		host = headerValue(headers, "Host")
	}
	if host == "" {
		writeStatusLine(conn, "400 Bad Request")
		return
	}

	log = log.WithFields(slog.String("method", method), slog.String("host", host), slog.String("path", path))

	cacheable := isCacheable(method)
	key := ""
	if cacheable {
		key = method + " " + host + path
	}

	if cacheable {
		if entry, ok := h.cache.FindAndPromote(key); ok {
			span.SetAttributes(tracing.CacheStatusAttribute(tracing.CacheStatusHit))
			if err := h.cache.StreamHit(entry, conn); err != nil {
				log.Error(ctx, "stream hit failed", err)
			}
			h.metrics.RecordCacheHit()
			log.Info(ctx, "served from cache")
			return
		}
		span.SetAttributes(tracing.CacheStatusAttribute(tracing.CacheStatusMiss))
		h.metrics.RecordCacheMiss()
	} else {
		span.SetAttributes(tracing.CacheStatusAttribute(tracing.CacheStatusBypass))
	}

	addr := net.JoinHostPort(host, port)
	originConn, err := h.pool.Acquire(ctx, addr)
	if err != nil {
		h.metrics.RecordOriginDialError()
		writeStatusLine(conn, "502 Bad Gateway")
		return
	}

	originConn.Raw().SetReadDeadline(time.Now().Add(h.cfg.OriginPool.ReadTimeout))

	err = h.cache.FetchAndStream(originConn.Raw(), conn, key, raw)
	healthy := err == nil
	h.pool.Release(addr, originConn, healthy)

	if err != nil {
		log.Error(ctx, "fetch failed", err)
		return
	}

	h.metrics.RecordBytesForwarded(len(raw))
	log.Info(ctx, "fetched from origin")
}

// writeStatusLine writes a minimal, bodyless HTTP status line and
// terminator directly to the client socket: there is no
// http.ResponseWriter on this transport to call WriteHeader on.
func writeStatusLine(w net.Conn, status string) {
	w.Write([]byte("HTTP/1.0 " + status + "\r\n\r\n"))
}
