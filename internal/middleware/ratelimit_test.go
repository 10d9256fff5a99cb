package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimitConfigValidate(t *testing.T) {
	if err := DefaultLoginLimit().Validate(); err != nil {
		t.Errorf("DefaultLoginLimit().Validate() = %v", err)
	}
	if err := (RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}).Validate(); err == nil {
		t.Error("zero RequestsPerWindow accepted")
	}
	if err := (RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 0}).Validate(); err == nil {
		t.Error("zero WindowDuration accepted")
	}
}

func TestInMemoryRateLimitStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}

	for i := 0; i < 3; i++ {
		allowed, _ := store.Allow(ctx, "key-a", config)
		if !allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}
	allowed, retryAfter := store.Allow(ctx, "key-a", config)
	if allowed {
		t.Fatal("fourth request allowed, want denied")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want in (0, 60]", retryAfter)
	}

	// Other keys have their own budget.
	if allowed, _ := store.Allow(ctx, "key-b", config); !allowed {
		t.Error("independent key denied")
	}
}

func TestInMemoryRateLimitStoreWindowReset(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 10 * time.Millisecond}

	if allowed, _ := store.Allow(ctx, "k", config); !allowed {
		t.Fatal("first request denied")
	}
	if allowed, _ := store.Allow(ctx, "k", config); allowed {
		t.Fatal("second request in window allowed")
	}

	time.Sleep(15 * time.Millisecond)
	if allowed, _ := store.Allow(ctx, "k", config); !allowed {
		t.Error("request after window reset denied")
	}
}

func TestInMemoryRateLimitStoreCleanup(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Millisecond}

	store.Allow(ctx, "stale", config)
	time.Sleep(5 * time.Millisecond)
	store.Cleanup()

	store.mu.Lock()
	n := len(store.buckets)
	store.mu.Unlock()
	if n != 0 {
		t.Errorf("buckets after cleanup = %d, want 0", n)
	}
}

func TestIPKeyFunc(t *testing.T) {
	keyFunc := IPKeyFunc()

	tests := []struct {
		name       string
		xff, xri   string
		remoteAddr string
		want       string
	}{
		{"forwarded single", "1.2.3.4", "", "9.9.9.9:1234", "1.2.3.4"},
		{"forwarded chain", "1.2.3.4, 5.6.7.8", "", "9.9.9.9:1234", "1.2.3.4"},
		{"real ip", "", "5.6.7.8", "9.9.9.9:1234", "5.6.7.8"},
		{"remote addr", "", "", "9.9.9.9:1234", "9.9.9.9"},
		{"remote addr without port", "", "", "9.9.9.9", "9.9.9.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := keyFunc(r); got != tt.want {
				t.Errorf("keyFunc() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}

	handler := RateLimiter(store, config, IPKeyFunc())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodPost, "/login_for_access_token", nil)
		r.RemoteAddr = "10.0.0.1:5000"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, r)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if last.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("missing X-RateLimit-Reset header")
	}
}
