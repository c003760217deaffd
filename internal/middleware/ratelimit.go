package middleware

import (
	"net"
	"sync"
	"time"

	"github.com/WillKirkmanM/cacheproxy/internal/config"
)

// TokenBucket implements token bucket algorithm for rate limiting
// Allows burst traffic up to bucket capacity while maintaining sustained rate
// Refills tokens at specified rate to prevent resource exhaustion
type TokenBucket struct {
	capacity   int
	tokens     int
	refillRate int
	lastRefill time.Time
	mutex      sync.Mutex
}

// NewTokenBucket creates token bucket with specified capacity and refill rate
// Initializes bucket at full capacity for immediate availability
func NewTokenBucket(capacity, refillRate int) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// TryConsume attempts to consume specified number of tokens
// Returns true if tokens available, false if rate limit exceeded
func (tb *TokenBucket) TryConsume(tokens int) bool {
	tb.mutex.Lock()
	defer tb.mutex.Unlock()

	tb.refill()

	if tb.tokens >= tokens {
		tb.tokens -= tokens
		return true
	}
	return false
}

// refill adds tokens to bucket based on elapsed time
func (tb *TokenBucket) refill() {
	now := time.Now()
	elapsed := now.Sub(tb.lastRefill)

	tokensToAdd := int(elapsed.Seconds()) * tb.refillRate
	if tokensToAdd > 0 {
		tb.tokens += tokensToAdd
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastRefill = now
	}
}

// RateLimiter manages rate limiting for accepted connections, bucketed
// by client IP: a token bucket, a per-IP map, and double-checked-locking
// lazy bucket creation. The over-limit response is written as a raw
// status line rather than via http.ResponseWriter, since there is no
// such type on a raw socket.
type RateLimiter struct {
	buckets    map[string]*TokenBucket
	mutex      sync.RWMutex
	capacity   int
	refillRate int
	enabled    bool
}

// NewRateLimiter creates rate limiter with specified limits
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		buckets:    make(map[string]*TokenBucket),
		capacity:   cfg.Capacity,
		refillRate: cfg.RefillRate,
		enabled:    cfg.Enabled,
	}
}

// Wrap decorates next with per-client-IP rate limiting. A client over
// its limit gets a literal status line written to the socket before it
// is closed, then the chain is short-circuited.
func (rl *RateLimiter) Wrap(next ConnHandler) ConnHandler {
	if !rl.enabled {
		return next
	}
	return func(conn net.Conn) {
		ip := clientIP(conn)
		bucket := rl.getBucket(ip)

		if !bucket.TryConsume(1) {
			conn.Write([]byte("HTTP/1.0 429 Too Many Requests\r\n\r\n"))
			conn.Close()
			return
		}

		next(conn)
	}
}

// getBucket retrieves or creates token bucket for client IP
// Double-checked locking pattern for thread safety and performance
func (rl *RateLimiter) getBucket(clientIP string) *TokenBucket {
	rl.mutex.RLock()
	bucket, exists := rl.buckets[clientIP]
	rl.mutex.RUnlock()

	if exists {
		return bucket
	}

	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	if bucket, exists := rl.buckets[clientIP]; exists {
		return bucket
	}

	bucket = NewTokenBucket(rl.capacity, rl.refillRate)
	rl.buckets[clientIP] = bucket
	return bucket
}

// clientIP extracts the client's IP address from the accepted
// connection's remote address, stripping the port.
func clientIP(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
