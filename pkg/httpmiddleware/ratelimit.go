package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the sliding window duration.
	Window time.Duration
	// KeyFunc derives the limiter key from a request. Nil means client IP.
	KeyFunc func(*http.Request) string
}

// window holds the counters for one key across two adjacent intervals.
type window struct {
	prev    float64
	curr    float64
	started time.Time
}

type rateLimiter struct {
	cfg  RateLimitConfig
	mu   sync.Mutex
	keys map[string]*window
}

// allow reports whether a request under key fits the limit at time now, and
// returns the remaining budget and the reset time for the response headers.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w := rl.keys[key]
	if w == nil {
		w = &window{started: now.Truncate(rl.cfg.Window)}
		rl.keys[key] = w
	}

	switch age := now.Sub(w.started); {
	case age >= 2*rl.cfg.Window:
		w.prev, w.curr = 0, 0
		w.started = now.Truncate(rl.cfg.Window)
	case age >= rl.cfg.Window:
		w.prev, w.curr = w.curr, 0
		w.started = w.started.Add(rl.cfg.Window)
	}

	// The previous interval contributes proportionally to how much of it the
	// sliding window still covers.
	frac := 1 - now.Sub(w.started).Seconds()/rl.cfg.Window.Seconds()
	if frac < 0 {
		frac = 0
	}
	count := w.prev*frac + w.curr
	reset = w.started.Add(rl.cfg.Window)

	if count >= float64(rl.cfg.Max) {
		return 0, reset, false
	}
	w.curr++

	remaining = int(float64(rl.cfg.Max) - count - 1)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, reset, true
}

func (rl *rateLimiter) evictStale(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.mu.Lock()
			for key, w := range rl.keys {
				if now.Sub(w.started) >= 2*rl.cfg.Window {
					delete(rl.keys, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// RateLimit enforces a per-key sliding window limit. Rejected requests get a
// 429 with a JSON body and a Retry-After header; every response carries the
// X-RateLimit-* headers. A background goroutine evicts idle keys until ctx
// is cancelled.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	rl := &rateLimiter{cfg: cfg, keys: make(map[string]*window)}
	go rl.evictStale(ctx)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := rl.allow(cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if !ok {
				retry := math.Ceil(time.Until(reset).Seconds())
				if retry < 0 {
					retry = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
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
