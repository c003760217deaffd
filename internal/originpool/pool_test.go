package originpool

import (
	"context"
	"net"
	"testing"
	"time"
)

func newEchoListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 1024)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestPoolAcquireDialsThenReuses(t *testing.T) {
	addr := newEchoListener(t)
	p, err := New(Config{Algorithm: "round-robin", MaxPerHost: 2, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.CloseAll()

	ctx := context.Background()
	c1, err := p.Acquire(ctx, addr)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(addr, c1, true)

	c2, err := p.Acquire(ctx, addr)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if c2.ID() != c1.ID() {
		t.Fatalf("expected the idle connection to be reused, got a different one")
	}
	if c2.UseCount() != 1 {
		t.Fatalf("expected use count 1 after one release, got %d", c2.UseCount())
	}
	p.Release(addr, c2, true)
}

func TestPoolExhaustedAtMaxPerHost(t *testing.T) {
	addr := newEchoListener(t)
	p, err := New(Config{Algorithm: "round-robin", MaxPerHost: 1, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.CloseAll()

	ctx := context.Background()
	c1, err := p.Acquire(ctx, addr)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := p.Acquire(ctx, addr); err != ErrPoolExhausted {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}

	p.Release(addr, c1, true)
	if _, err := p.Acquire(ctx, addr); err != nil {
		t.Fatalf("expected acquire to succeed after release, got %v", err)
	}
}

func TestPoolDropsUnhealthyConnectionOnRelease(t *testing.T) {
	addr := newEchoListener(t)
	p, err := New(Config{Algorithm: "round-robin", MaxPerHost: 1, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.CloseAll()

	ctx := context.Background()
	c1, err := p.Acquire(ctx, addr)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(addr, c1, false)

	hp := p.hostPoolFor(addr)
	hp.mu.Lock()
	n := len(hp.conns)
	hp.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected the unhealthy connection to be dropped, pool has %d entries", n)
	}

	if _, err := p.Acquire(ctx, addr); err != nil {
		t.Fatalf("expected fresh dial to succeed after drop, got %v", err)
	}
}

func TestPoolSweepIdleClosesStaleConnections(t *testing.T) {
	addr := newEchoListener(t)
	p, err := New(Config{Algorithm: "round-robin", MaxPerHost: 2, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.CloseAll()

	ctx := context.Background()
	c1, err := p.Acquire(ctx, addr)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	p.Release(addr, c1, true)

	p.SweepIdle(0) // any positive elapsed time counts as stale

	hp := p.hostPoolFor(addr)
	hp.mu.Lock()
	n := len(hp.conns)
	hp.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected sweep to drop the idle connection, pool has %d entries", n)
	}
}

func TestPoolWarmUpDialsAllHosts(t *testing.T) {
	addr1 := newEchoListener(t)
	addr2 := newEchoListener(t)
	p, err := New(Config{Algorithm: "round-robin", MaxPerHost: 2, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer p.CloseAll()

	if err := p.WarmUp(context.Background(), []string{addr1, addr2}); err != nil {
		t.Fatalf("warm up: %v", err)
	}

	for _, addr := range []string{addr1, addr2} {
		hp := p.hostPoolFor(addr)
		hp.mu.Lock()
		n := len(hp.conns)
		hp.mu.Unlock()
		if n != 1 {
			t.Fatalf("expected one warmed connection to %s, got %d", addr, n)
		}
	}
}
