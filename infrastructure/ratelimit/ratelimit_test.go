package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 10, Burst: 2})
	if !rl.Allow() {
		t.Error("expected first request to be allowed")
	}
	if !rl.Allow() {
		t.Error("expected second request within burst to be allowed")
	}
}

func TestRateLimiterLimitExceededAfterBurst(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	rl.Allow() // consume the single token
	if !rl.LimitExceeded() {
		t.Error("expected limit to be exceeded once the burst is consumed")
	}
}

func TestRateLimiterResetRestoresCapacity(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	rl.Allow()
	rl.Reset()
	if !rl.Allow() {
		t.Error("expected capacity to be restored after Reset")
	}
}

func TestRateLimiterWaitBlocksUntilTokenAvailable(t *testing.T) {
	rl := New(RateLimitConfig{RequestsPerSecond: 20, Burst: 1})
	rl.Allow() // consume the only token

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx); err != nil {
		t.Fatalf("expected Wait to succeed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 25*time.Millisecond {
		t.Errorf("expected Wait to block until the next token (about 50ms at 20 rps), returned after %v", elapsed)
	}
}

func TestRateLimitedClientAppliesLimiterBeforeDo(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRateLimitedClient(&http.Client{}, RateLimitConfig{RequestsPerSecond: 50, Burst: 5})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("expected request to succeed, got %v", err)
	}
	resp.Body.Close()

	if hits != 1 {
		t.Errorf("expected exactly one upstream hit, got %d", hits)
	}
}
