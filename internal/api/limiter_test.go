package api

import (
	"testing"
	"time"

	"courtbook/internal/config"
)

func TestRateLimiter_BurstPerKey(t *testing.T) {
	l := newRateLimiter(&config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 2}})
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.allow("a") || !l.allow("a") {
		t.Fatalf("expected burst of 2 to pass")
	}
	if l.allow("a") {
		t.Fatalf("expected third request to be limited")
	}
	if !l.allow("b") {
		t.Fatalf("expected separate bucket for another key")
	}

	now = now.Add(time.Second)
	if !l.allow("a") {
		t.Fatalf("expected token refill after one second")
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	l := newRateLimiter(&config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 1}})
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.allow("idle")
	now = now.Add(limiterIdleExpiry + time.Minute)
	l.allow("active")

	if _, ok := l.buckets["idle"]; ok {
		t.Fatalf("expected idle bucket to be dropped")
	}
	if _, ok := l.buckets["active"]; !ok {
		t.Fatalf("expected active bucket to be kept")
	}
	if l.burst != defaultBurst {
		t.Fatalf("burst = %d, want %d", l.burst, defaultBurst)
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	l := newRateLimiter(&config.APIConfig{})
	for i := 0; i < 100; i++ {
		if !l.allow("x") {
			t.Fatalf("disabled limiter must allow everything")
		}
	}
}
