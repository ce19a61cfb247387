package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter counts requests per key in fixed windows.
type RateLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*window
}

type window struct {
	count int
	start time.Time
}

// NewRateLimiter allows limit requests per key in every window.
func NewRateLimiter(limit int, every time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  every,
		now:     time.Now,
		entries: make(map[string]*window),
	}
}

// Allow records a request for key and reports whether it is within the limit.
// When it is not, the time until the window resets is returned.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[key]
	if !ok || now.Sub(e.start) >= rl.window {
		rl.entries[key] = &window{count: 1, start: now}
		return true, 0
	}
	if e.count < rl.limit {
		e.count++
		return true, 0
	}
	return false, rl.window - now.Sub(e.start)
}

// Run drops expired windows until ctx is canceled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.prune()
		}
	}
}

func (rl *RateLimiter) prune() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, e := range rl.entries {
		if now.Sub(e.start) >= rl.window {
			delete(rl.entries, key)
		}
	}
}

// Limit returns middleware that rejects clients over the limit with 429.
// Every report submission starts a long pipeline, so the limit is applied
// per client address.
func (rl *RateLimiter) Limit(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, wait := rl.Allow(ip)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path, "method", r.Method)

		retryAfter := int(wait.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{
				"code":    "rate_limited",
				"message": "Too many report requests. Please try again later.",
			},
		})
	})
}
