package middleware

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newTestLimiter(limit int, every time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(limit, every)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	rl, clock := newTestLimiter(2, time.Minute)

	for i := 0; i < 2; i++ {
		if ok, _ := rl.Allow("a"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, wait := rl.Allow("a")
	if ok {
		t.Fatal("third request should be blocked")
	}
	if wait != time.Minute {
		t.Errorf("wait = %v, want 1m", wait)
	}

	if ok, _ := rl.Allow("b"); !ok {
		t.Error("other keys are counted separately")
	}

	clock.t = clock.t.Add(40 * time.Second)
	if _, wait := rl.Allow("a"); wait != 20*time.Second {
		t.Errorf("wait = %v, want 20s", wait)
	}

	clock.t = clock.t.Add(20 * time.Second)
	if ok, _ := rl.Allow("a"); !ok {
		t.Error("request after the window should be allowed")
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, clock := newTestLimiter(1, time.Minute)
	rl.Allow("a")
	clock.t = clock.t.Add(30 * time.Second)
	rl.Allow("b")
	clock.t = clock.t.Add(40 * time.Second)

	rl.prune()

	if _, ok := rl.entries["a"]; ok {
		t.Error("expired window should be pruned")
	}
	if _, ok := rl.entries["b"]; !ok {
		t.Error("live window should be kept")
	}
}

func TestRateLimiter_RunStopsWithContext(t *testing.T) {
	rl := NewRateLimiter(1, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRateLimiter_Limit(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := rl.Limit(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/reports", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(); rec.Code != http.StatusAccepted {
		t.Fatalf("first request status = %d", rec.Code)
	}

	rec := send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "3600" {
		t.Errorf("Retry-After = %q, want 3600", got)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Error.Code != "rate_limited" {
		t.Errorf("error code = %q", body.Error.Code)
	}
}
