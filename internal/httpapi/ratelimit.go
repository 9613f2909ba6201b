package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

type RateLimitConfig struct {
	IPPerMinute      int
	IPBurst          int
	DisplayPerMinute int
	DisplayBurst     int
}

// RateLimiter applies one token bucket per client IP and, for waiting-room
// screens that identify themselves, one per display id.
type RateLimiter struct {
	ipLimiter      *tokenLimiter
	displayLimiter *tokenLimiter
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		ipLimiter:      newTokenLimiter(cfg.IPPerMinute, cfg.IPBurst),
		displayLimiter: newTokenLimiter(cfg.DisplayPerMinute, cfg.DisplayBurst),
	}
}

func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if displayID := displayIDFromRequest(r); displayID != "" {
			if !l.displayLimiter.allow(displayID) {
				writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		if ip != "" && !l.ipLimiter.allow(ip) {
			writeError(w, requestIDFromRequest(r), http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type tokenLimiter struct {
	mu     sync.Mutex
	rate   float64
	burst  float64
	bucket map[string]*bucket
	now    func() time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newTokenLimiter(perMinute, burst int) *tokenLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 20
	}
	return &tokenLimiter{
		rate:   float64(perMinute) / 60.0,
		burst:  float64(burst),
		bucket: make(map[string]*bucket),
		now:    time.Now,
	}
}

func (l *tokenLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.bucket[key]
	if !ok {
		l.bucket[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = min(l.burst, b.tokens+elapsed*l.rate)
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// prune drops buckets that have been idle long enough to be full again.
func (l *tokenLimiter) prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	refill := time.Duration(l.burst / l.rate * float64(time.Second))
	now := l.now()
	removed := 0
	for key, b := range l.bucket {
		if now.Sub(b.last) >= refill {
			delete(l.bucket, key)
			removed++
		}
	}
	return removed
}

// Prune forgets idle clients. main calls it on a ticker.
func (l *RateLimiter) Prune() int {
	return l.ipLimiter.prune() + l.displayLimiter.prune()
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func displayIDFromRequest(r *http.Request) string {
	if displayID := strings.TrimSpace(r.Header.Get("X-Display-ID")); displayID != "" {
		return displayID
	}
	return strings.TrimSpace(r.URL.Query().Get("display_id"))
}
