// Package ratelimit limits requests per client key in process memory.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Limiter allows limit events per window for each key, refilling evenly.
// State is lost on restart.
type Limiter struct {
	mu       sync.Mutex
	every    rate.Limit
	interval time.Duration
	burst    int
	idle     time.Duration
	keys     map[string]*entry
	now      func() time.Time
	sweeps   int
}

func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	interval := window / time.Duration(limit)
	return &Limiter{
		every:    rate.Every(interval),
		interval: interval,
		burst:    limit,
		idle:     window,
		keys:     map[string]*entry{},
		now:      time.Now,
	}
}

// Allow reports whether key may proceed and consumes a token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{lim: rate.NewLimiter(l.every, l.burst)}
		l.keys[key] = e
	}
	e.seen = now
	if l.sweeps++; l.sweeps >= 1024 {
		l.sweep(now)
	}
	return e.lim.AllowN(now, 1)
}

// sweep drops keys idle for a full window; their buckets are full again.
func (l *Limiter) sweep(now time.Time) {
	l.sweeps = 0
	for k, e := range l.keys {
		if now.Sub(e.seen) > l.idle {
			delete(l.keys, k)
		}
	}
}

// ClientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware answers 429 once the client IP is over its limit.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(int(l.interval.Seconds())))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"too many requests, try again later"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
