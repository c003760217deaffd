package middleware

import (
	"net"
	"testing"
	"time"

	"github.com/WillKirkmanM/cacheproxy/internal/config"
)

func TestTokenBucketConsumesUpToCapacity(t *testing.T) {
	tb := NewTokenBucket(3, 1)

	for i := 0; i < 3; i++ {
		if !tb.TryConsume(1) {
			t.Fatalf("expected token %d to be available", i)
		}
	}
	if tb.TryConsume(1) {
		t.Fatal("expected bucket to be empty after consuming capacity")
	}
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	tb := NewTokenBucket(2, 2)
	if !tb.TryConsume(2) {
		t.Fatal("expected initial consume to succeed")
	}
	if tb.TryConsume(1) {
		t.Fatal("expected bucket to be empty")
	}

	tb.lastRefill = time.Now().Add(-time.Second)
	if !tb.TryConsume(1) {
		t.Fatal("expected refill after elapsed second to allow consume")
	}
}

func TestRateLimiterDisabledPassesThrough(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: false, Capacity: 1, RefillRate: 1})

	called := false
	handler := rl.Wrap(func(net.Conn) { called = true })

	client, server := net.Pipe()
	defer client.Close()
	go handler(server)

	buf := make([]byte, 1)
	client.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	if _, err := client.Read(buf); err == nil {
		t.Fatal("expected no response written by a disabled rate limiter")
	}
	if !called {
		t.Fatal("expected next handler to run when rate limiting is disabled")
	}
}

func TestRateLimiterRejectsOverLimitClient(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: true, Capacity: 1, RefillRate: 0})

	calls := 0
	handler := rl.Wrap(func(net.Conn) { calls++ })

	client1, server1 := net.Pipe()
	done := make(chan struct{})
	go func() {
		handler(server1)
		close(done)
	}()
	<-done
	client1.Close()

	client2, server2 := net.Pipe()
	defer client2.Close()
	go handler(server2)

	buf := make([]byte, 64)
	client2.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client2.Read(buf)
	if err != nil {
		t.Fatalf("expected a 429 status line, got error: %v", err)
	}
	if got := string(buf[:n]); got[:12] != "HTTP/1.0 429" {
		t.Fatalf("expected 429 status line, got %q", got)
	}
	if calls != 1 {
		t.Fatalf("expected only the first connection to reach next, got %d calls", calls)
	}
}

func TestClientIPStripsPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer server.Close()

	ip := clientIP(server)
	if ip != "127.0.0.1" {
		t.Fatalf("expected the client IP without its port, got %q", ip)
	}
}
