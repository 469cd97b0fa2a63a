package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// mockClock is a controllable clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2030, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllowWindow(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{Window: time.Minute, MaxRequests: 3, Clock: clock})
	defer limiter.Close()

	for i := 0; i < 3; i++ {
		res := limiter.Allow("1.2.3.4")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 2-i {
			t.Fatalf("request %d remaining = %d, want %d", i+1, res.Remaining, 2-i)
		}
	}

	clock.Advance(20 * time.Second)
	res := limiter.Allow("1.2.3.4")
	if res.Allowed {
		t.Fatal("fourth request should be blocked")
	}
	if res.RetryAfter != 40*time.Second {
		t.Fatalf("retry after = %s, want 40s", res.RetryAfter)
	}

	if !limiter.Allow("5.6.7.8").Allowed {
		t.Fatal("other keys have their own window")
	}

	clock.Advance(40 * time.Second)
	if !limiter.Allow("1.2.3.4").Allowed {
		t.Fatal("a new window should allow the request")
	}
}

func TestCleanupDropsStaleWindows(t *testing.T) {
	clock := newMockClock()
	limiter := New(&Config{Window: time.Minute, MaxRequests: 1, Clock: clock})
	defer limiter.Close()

	limiter.Allow("a")
	clock.Advance(2 * time.Minute)
	limiter.Allow("b")
	limiter.cleanup()

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	if _, ok := limiter.keys["a"]; ok {
		t.Fatal("stale window should be removed")
	}
	if _, ok := limiter.keys["b"]; !ok {
		t.Fatal("current window should be kept")
	}
}

func TestMiddleware(t *testing.T) {
	limiter := New(&Config{Window: time.Minute, MaxRequests: 1, Clock: newMockClock()})
	defer limiter.Close()

	h := limiter.Middleware("accept")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/invitations/accept", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	if rec := do("203.0.113.1:5000"); rec.Code != http.StatusNoContent {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := do("203.0.113.1:5001")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	if rec := do("203.0.113.2:5000"); rec.Code != http.StatusNoContent {
		t.Fatalf("other client status = %d", rec.Code)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remote     string
		xff        string
		realIP     string
		trustProxy bool
		want       string
	}{
		{name: "remote addr", remote: "203.0.113.5:1234", want: "203.0.113.5"},
		{name: "xff ignored without trust", remote: "10.0.0.1:1", xff: "198.51.100.7", want: "10.0.0.1"},
		{name: "rightmost public xff", remote: "10.0.0.1:1", xff: "198.51.100.7, 203.0.113.9, 10.0.0.2", trustProxy: true, want: "203.0.113.9"},
		{name: "all private xff", remote: "10.0.0.1:1", xff: "10.0.0.3, 192.168.1.1", trustProxy: true, want: "192.168.1.1"},
		{name: "x-real-ip", remote: "10.0.0.1:1", realIP: "198.51.100.8", trustProxy: true, want: "198.51.100.8"},
		{name: "no port", remote: "203.0.113.5", want: "203.0.113.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := GetClientIP(req, tt.trustProxy); got != tt.want {
				t.Fatalf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
