package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc picks the bucket for a request. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// counter approximates a sliding window from two fixed windows: the previous
// window's count is weighted by how much of it still overlaps.
type counter struct {
	prev      float64
	curr      float64
	currStart time.Time
}

func (c *counter) rotate(now time.Time, window time.Duration) {
	if now.Sub(c.currStart) < window {
		return
	}
	start := now.Truncate(window)
	if start.Sub(c.currStart) > window {
		c.prev = 0
	} else {
		c.prev = c.curr
	}
	c.curr = 0
	c.currStart = start
}

func (c *counter) estimate(now time.Time, window time.Duration) float64 {
	overlap := 1 - now.Sub(c.currStart).Seconds()/window.Seconds()
	return c.prev*max(overlap, 0) + c.curr
}

// Decision is the outcome of Limiter.Allow.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter keeps one counter per key.
type Limiter struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter returns a Limiter admitting limit requests per window and key.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		max:      limit,
		window:   window,
		counters: make(map[string]*counter),
	}
}

// Allow records a request for key at now if it fits in the window.
func (l *Limiter) Allow(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.counters[key]
	if !ok {
		c = &counter{currStart: now.Truncate(l.window)}
		l.counters[key] = c
	}
	c.rotate(now, l.window)

	d := Decision{ResetAt: c.currStart.Add(l.window)}
	used := c.estimate(now, l.window)
	if used >= float64(l.max) {
		return d
	}
	c.curr++
	d.Allowed = true
	d.Remaining = max(int(float64(l.max)-used-1), 0)
	return d
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// Evict drops keys idle for two full windows.
func (l *Limiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.currStart) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

// Run evicts idle keys every two windows until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(2 * l.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Evict(now)
		}
	}
}

// RateLimit answers 429 once a key exceeds its budget. Every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(NewLimiter(cfg.Max, cfg.Window), cfg.KeyFunc)
}

// RateLimitWithCleanup is RateLimit plus a goroutine evicting idle keys
// until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg.Max, cfg.Window)
	go l.Run(ctx)
	return rateLimit(l, cfg.KeyFunc)
}

func rateLimit(l *Limiter, key func(*http.Request) string) Middleware {
	if key == nil {
		key = ClientIP
	}
	limit := strconv.Itoa(l.max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := l.Allow(key(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				wait := max(time.Until(d.ResetAt), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys by the first X-Forwarded-For hop, then X-Real-IP, then the
// peer address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// HeaderOrIP keys by a request header (an API key, say) and falls back to
// ClientIP when the header is absent.
func HeaderOrIP(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		if v := r.Header.Get(header); v != "" {
			return header + ":" + v
		}
		return ClientIP(r)
	}
}
