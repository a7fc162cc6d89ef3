package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RealIP returns the client address. Proxy headers win over RemoteAddr;
// for X-Forwarded-For the left-most hop is the client.
func RealIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Limit is a fixed-window budget: Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// AuthLimit guards the unauthenticated login flow.
var AuthLimit = Limit{Requests: 10, Window: time.Minute}

type bucket struct {
	used    int
	resetAt time.Time
}

// Decision is the outcome of one Take.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// RateLimiter counts requests per key in memory.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{buckets: make(map[string]*bucket), now: time.Now}
}

// Take spends one request from key's budget under l.
func (rl *RateLimiter) Take(key string, l Limit) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.Window)}
		rl.buckets[key] = b
	}
	b.used++
	return Decision{
		Allowed:   b.used <= l.Requests,
		Remaining: max(l.Requests-b.used, 0),
		ResetIn:   b.resetAt.Sub(now),
	}
}

// Allow reports whether key is still within l.
func (rl *RateLimiter) Allow(key string, l Limit) bool {
	return rl.Take(key, l).Allowed
}

// Cleanup drops buckets whose window has passed and returns how many.
func (rl *RateLimiter) Cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	n := 0
	for key, b := range rl.buckets {
		if !now.Before(b.resetAt) {
			delete(rl.buckets, key)
			n++
		}
	}
	return n
}

// RateLimit limits requests per path and keyFunc(r). Rejections answer
// 429 with Retry-After set to the seconds left in the window.
func RateLimit(limiter *RateLimiter, keyFunc func(*http.Request) string, l Limit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := limiter.Take(r.URL.Path+"|"+keyFunc(r), l)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Requests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.ResetIn.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
