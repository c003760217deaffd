package server

import (
	"bufio"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/WillKirkmanM/cacheproxy/internal/cache"
	"github.com/WillKirkmanM/cacheproxy/internal/config"
	"github.com/WillKirkmanM/cacheproxy/internal/logging"
	"github.com/WillKirkmanM/cacheproxy/internal/metrics"
	"github.com/WillKirkmanM/cacheproxy/internal/originpool"
)

// testMetrics is shared across this package's tests: metrics.NewMetrics
// registers its instruments with Prometheus's global default registry,
// so constructing it more than once per test binary panics on duplicate
// registration.
var (
	testMetricsOnce sync.Once
	testMetrics     *metrics.Metrics
)

func sharedTestMetrics() *metrics.Metrics {
	testMetricsOnce.Do(func() {
		testMetrics = metrics.NewMetrics()
	})
	return testMetrics
}

// newOriginListener starts a loopback TCP server that replies to every
// connection with a single fixed HTTP response, the way pool_test.go's
// echo listener stands in for a real origin.
func newOriginListener(t *testing.T, response string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				br := bufio.NewReader(c)
				for {
					line, err := br.ReadString('\n')
					if err != nil || strings.TrimRight(line, "\r\n") == "" {
						break
					}
				}
				c.Write([]byte(response))
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.OriginPool.ReadTimeout = time.Second
	pool, err := originpool.New(originpool.Config{
		Algorithm:   cfg.OriginPool.Algorithm,
		MaxPerHost:  cfg.OriginPool.MaxPerHost,
		DialTimeout: time.Second,
		IdleTimeout: cfg.OriginPool.IdleTimeout,
	})
	if err != nil {
		t.Fatalf("originpool.New: %v", err)
	}
	t.Cleanup(pool.CloseAll)

	c := cache.New(10, 4096)
	logger := logging.NewLogger("test", 0)

	return NewHandler(c, pool, cfg, logger, sharedTestMetrics())
}

func TestHandleMissFetchesFromOrigin(t *testing.T) {
	body := "hello from origin"
	response := "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
	addr := newOriginListener(t, response)

	h := newTestHandler(t)

	client, server := net.Pipe()
	defer client.Close()

	go h.Handle(server)

	req := "GET http://" + addr + "/page HTTP/1.1\r\nHost: " + addr + "\r\n\r\n"
	client.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	got, err := io.ReadAll(client)
	if err != nil && err != io.EOF {
		t.Fatalf("read response: %v", err)
	}
	if !strings.Contains(string(got), body) {
		t.Fatalf("expected response to contain origin body, got %q", got)
	}
}

func TestHandleUnsupportedMethodRejected(t *testing.T) {
	h := newTestHandler(t)

	client, server := net.Pipe()
	defer client.Close()

	go h.Handle(server)

	req := "TRACE http://example.com/ HTTP/1.1\r\nHost: example.com\r\n\r\n"
	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte(req))

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if got := string(buf[:n]); !strings.HasPrefix(got, "HTTP/1.0 501") {
		t.Fatalf("expected 501 status line, got %q", got)
	}
}

func TestHandleUnsupportedVersionRejected(t *testing.T) {
	h := newTestHandler(t)

	client, server := net.Pipe()
	defer client.Close()

	go h.Handle(server)

	req := "GET http://example.com/ HTTP/2.0\r\nHost: example.com\r\n\r\n"
	client.SetDeadline(time.Now().Add(2 * time.Second))
	client.Write([]byte(req))

	buf := make([]byte, 64)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if got := string(buf[:n]); !strings.HasPrefix(got, "HTTP/1.0 400") {
		t.Fatalf("expected 400 status line, got %q", got)
	}
}
