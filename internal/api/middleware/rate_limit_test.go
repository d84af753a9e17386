package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lawdesk/internal/platform/config"
)

func TestRateLimiter_AllowAndRefill(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(config.RateLimitConfig{})
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow("ORG1:ai", 3) {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("ORG1:ai", 3) {
		t.Fatal("fourth request should be throttled")
	}
	if !rl.Allow("ORG2:ai", 3) {
		t.Error("other organizations have their own bucket")
	}

	now = now.Add(20 * time.Second)
	if !rl.Allow("ORG1:ai", 3) {
		t.Error("bucket should refill one token per 20s at 3/min")
	}
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(config.RateLimitConfig{})
	rl.now = func() time.Time { return now }

	rl.Allow("ORG1:api_read", 10)
	now = now.Add(11 * time.Minute)
	rl.evictIdle(10 * time.Minute)

	if _, ok := rl.store.Load("ORG1:api_read"); ok {
		t.Error("idle bucket should be evicted")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{AIPerMinute: 1})
	h := rl.Limit(LimitAI)(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("POST", "/", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest("POST", "/", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
