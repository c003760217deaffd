package originpool

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrPoolExhausted is returned when a host's pool is at MaxPerHost and
// every slot is currently in use.
var ErrPoolExhausted = errors.New("originpool: pool exhausted for host")

// Config bounds a Pool's behavior: how many connections may be open to
// a single host at once, how long dialing and idling may take, and
// which selection algorithm chooses among idle slots.
type Config struct {
	Algorithm   string
	MaxPerHost  int
	DialTimeout time.Duration
	IdleTimeout time.Duration
}

// hostPool is the set of connections currently open to one origin host.
type hostPool struct {
	mu    sync.Mutex
	conns []Conn
}

// Pool manages keep-alive connections across every origin host the
// proxy has fetched from, handing cache.FetchAndStream a reused
// connection when one is idle and healthy, and dialing a fresh one
// otherwise, up to the per-host bound.
type Pool struct {
	cfg      Config
	selector Selector

	mu    sync.Mutex
	hosts map[string]*hostPool
}

// New creates a connection pool using the given configuration.
func New(cfg Config) (*Pool, error) {
	sel, err := NewSelector(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	if cfg.MaxPerHost <= 0 {
		cfg.MaxPerHost = 8
	}
	return &Pool{
		cfg:      cfg,
		selector: sel,
		hosts:    make(map[string]*hostPool),
	}, nil
}

// WarmUp pre-dials one connection to each of the given hosts
// concurrently, returning the first dial error encountered (if any)
// after all dials complete. Uses golang.org/x/sync/errgroup rather than
// a raw sync.WaitGroup so the first failure propagates as an error
// instead of being swallowed.
func (p *Pool) WarmUp(ctx context.Context, hosts []string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, host := range hosts {
		host := host
		g.Go(func() error {
			c, err := p.Acquire(ctx, host)
			if err != nil {
				return fmt.Errorf("warm up %s: %w", host, err)
			}
			p.Release(host, c, true)
			return nil
		})
	}
	return g.Wait()
}

// Acquire returns a connection to host, reusing an idle healthy one if
// the selector finds one, otherwise dialing a fresh connection if the
// host's pool has room, otherwise returning ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context, host string) (Conn, error) {
	hp := p.hostPoolFor(host)

	hp.mu.Lock()
	if c, err := p.selector.Select(hp.conns); err == nil {
		c.SetInUse(true)
		hp.mu.Unlock()
		return c, nil
	}
	if len(hp.conns) >= p.cfg.MaxPerHost {
		hp.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	hp.mu.Unlock()

	raw, err := dial(ctx, host, p.cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	c := newPooledConn(uuid.NewString(), raw)
	c.SetInUse(true)

	hp.mu.Lock()
	if len(hp.conns) >= p.cfg.MaxPerHost {
		hp.mu.Unlock()
		raw.Close()
		return nil, ErrPoolExhausted
	}
	hp.conns = append(hp.conns, c)
	hp.mu.Unlock()

	return c, nil
}

// Release returns a connection to its host's idle set. A connection
// reported unhealthy is closed and dropped from the pool instead of
// being returned for reuse: a failed fetch leaves the underlying
// transport in an unknown state, so the safest move is to discard the
// connection rather than hand its uncertainty to the next request.
func (p *Pool) Release(host string, c Conn, healthy bool) {
	c.IncrementUseCount()
	c.Touch()
	c.SetHealthy(healthy)
	c.SetInUse(false)

	if healthy {
		return
	}

	hp := p.hostPoolFor(host)
	hp.mu.Lock()
	defer hp.mu.Unlock()
	for i, existing := range hp.conns {
		if existing.ID() == c.ID() {
			hp.conns = append(hp.conns[:i], hp.conns[i+1:]...)
			break
		}
	}
	c.Close()
}

// SweepIdle closes and drops every connection across every host that
// has been idle longer than idleTimeout. Intended to run off a ticker
// in the background, independent of request handling.
func (p *Pool) SweepIdle(idleTimeout time.Duration) {
	cutoff := time.Now().Add(-idleTimeout)

	p.mu.Lock()
	hostPools := make([]*hostPool, 0, len(p.hosts))
	for _, hp := range p.hosts {
		hostPools = append(hostPools, hp)
	}
	p.mu.Unlock()

	for _, hp := range hostPools {
		hp.mu.Lock()
		kept := hp.conns[:0]
		for _, c := range hp.conns {
			if !c.InUse() && c.LastUsed().Before(cutoff) {
				c.Close()
				continue
			}
			kept = append(kept, c)
		}
		hp.conns = kept
		hp.mu.Unlock()
	}
}

// CloseAll closes every connection in every host pool. Called during
// server shutdown.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, hp := range p.hosts {
		hp.mu.Lock()
		for _, c := range hp.conns {
			c.Close()
		}
		hp.conns = nil
		hp.mu.Unlock()
	}
}

func (p *Pool) hostPoolFor(host string) *hostPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	hp, ok := p.hosts[host]
	if !ok {
		hp = &hostPool{}
		p.hosts[host] = hp
	}
	return hp
}

func dial(ctx context.Context, host string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", host)
}
