package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRateLimitConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{"valid", RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute}, false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"negative requests", RateLimitConfig{RequestsPerWindow: -1, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 100, WindowDuration: 0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestInMemoryStoreCountsDownThenBlocks(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, _ := store.Allow(ctx, "planner-1", cfg)
		if !allowed {
			t.Fatalf("request %d: want allowed", i+1)
		}
		if want := 2 - i; remaining != want {
			t.Errorf("request %d: remaining = %d, want %d", i+1, remaining, want)
		}
	}

	allowed, remaining, retryAfter := store.Allow(ctx, "planner-1", cfg)
	if allowed {
		t.Error("fourth request: want blocked")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
	if retryAfter < 1 {
		t.Errorf("retryAfter = %d, want >= 1", retryAfter)
	}
}

func TestInMemoryStoreWindowExpiry(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 20 * time.Millisecond}
	ctx := context.Background()

	if allowed, _, _ := store.Allow(ctx, "k", cfg); !allowed {
		t.Fatal("first request: want allowed")
	}
	if allowed, _, _ := store.Allow(ctx, "k", cfg); allowed {
		t.Fatal("second request inside window: want blocked")
	}

	time.Sleep(30 * time.Millisecond)

	if allowed, _, _ := store.Allow(ctx, "k", cfg); !allowed {
		t.Error("request after window expiry: want allowed")
	}
}

func TestInMemoryStoreIsolatesKeys(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	store.Allow(ctx, "user:planner-1", cfg)
	if allowed, _, _ := store.Allow(ctx, "user:planner-1", cfg); allowed {
		t.Error("planner-1 exhausted its window, want blocked")
	}
	if allowed, _, _ := store.Allow(ctx, "user:planner-2", cfg); !allowed {
		t.Error("planner-2 has its own window, want allowed")
	}
}

func TestInMemoryStoreCleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Millisecond}
	ctx := context.Background()

	store.Allow(ctx, "stale", cfg)
	time.Sleep(20 * time.Millisecond)
	store.Cleanup()

	store.mu.Lock()
	_, present := store.windows["stale"]
	store.mu.Unlock()
	if present {
		t.Error("Cleanup should drop expired windows")
	}
}

func TestIPKeyFunc(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr with port", "198.51.100.7:4312", nil, "198.51.100.7"},
		{"remote addr without port", "198.51.100.7", nil, "198.51.100.7"},
		{"ipv6 remote addr", "[2001:db8::1]:4312", nil, "2001:db8::1"},
		{"forwarded-for single", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "203.0.113.5"},
		{"forwarded-for chain", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.2"}, "203.0.113.5"},
		{"forwarded-for padded", "10.0.0.1:80", map[string]string{"X-Forwarded-For": " 203.0.113.5 , 10.0.0.2"}, "203.0.113.5"},
		{"real-ip", "10.0.0.1:80", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"forwarded-for wins over real-ip", "10.0.0.1:80", map[string]string{"X-Forwarded-For": "203.0.113.5", "X-Real-IP": "203.0.113.9"}, "203.0.113.5"},
	}
	keyFn := IPKeyFunc()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/projects", nil)
			req.RemoteAddr = tc.remoteAddr
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			if got := keyFn(req); got != tc.want {
				t.Errorf("key = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUserKeyFuncPrefixes(t *testing.T) {
	keyFn := UserKeyFunc()

	req := httptest.NewRequest(http.MethodGet, "/projects", nil)
	req.RemoteAddr = "198.51.100.7:4312"
	if got := keyFn(req); got != "ip:198.51.100.7" {
		t.Errorf("anonymous key = %q, want ip:198.51.100.7", got)
	}

	req = req.WithContext(SetUserID(req.Context(), "planner-1"))
	if got := keyFn(req); got != "user:planner-1" {
		t.Errorf("authenticated key = %q, want user:planner-1", got)
	}
}

func TestRateLimiterHeadersAndBlocking(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	handler := RateLimiter(store, cfg, IPKeyFunc(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/scenarios/3/services", nil)
		req.RemoteAddr = "198.51.100.7:4312"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := send()
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("X-RateLimit-Limit = %q, want 2", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("X-RateLimit-Remaining = %q, want 1", got)
	}

	send()
	rec = send()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("blocked response missing Retry-After")
	}
	reset := rec.Header().Get("X-RateLimit-Reset")
	if reset == "" {
		t.Fatal("blocked response missing X-RateLimit-Reset")
	}
	ts, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		t.Fatalf("X-RateLimit-Reset %q is not a unix timestamp: %v", reset, err)
	}
	if ts < time.Now().Unix() {
		t.Errorf("X-RateLimit-Reset %d is in the past", ts)
	}
}

func TestRateLimiterRecordsMetrics(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}

	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	handler := RateLimiter(store, cfg, IPKeyFunc(), metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/scenarios/42/geometries", nil)
		req.RemoteAddr = "198.51.100.7:4312"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
	}

	labels := map[string]string{"endpoint": "/scenarios/{id}/geometries", "key_type": "ip"}
	if got := counterValue(t, reg, MetricRateLimitRequests, labels); got != 2 {
		t.Errorf("requests counter = %v, want 2", got)
	}
	if got := counterValue(t, reg, MetricRateLimitBlocked, labels); got != 1 {
		t.Errorf("blocked counter = %v, want 1", got)
	}
}
