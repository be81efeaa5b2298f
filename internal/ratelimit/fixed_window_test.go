package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryLimiterResetsEachWindow(t *testing.T) {
	limiter, err := NewMemoryLimiter(2, time.Minute)
	if err != nil {
		t.Fatalf("new memory limiter: %v", err)
	}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if !limiter.Allow("alice") || !limiter.Allow("alice") {
		t.Fatalf("first two attempts should pass")
	}
	if limiter.Allow("alice") {
		t.Fatalf("third attempt should be blocked")
	}
	if !limiter.Allow("bob") {
		t.Fatalf("keys must be counted separately")
	}
	now = now.Add(time.Minute)
	if !limiter.Allow("alice") {
		t.Fatalf("next window should pass")
	}
}

func TestRedisLimiter(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisLimiter(redis.Addr(), "", "test:ratelimit", 2, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	defer limiter.Close()
	if !limiter.Allow("alice") {
		t.Fatalf("first attempt should pass")
	}
	if !limiter.Allow("alice") {
		t.Fatalf("second attempt should pass")
	}
	if limiter.Allow("alice") {
		t.Fatalf("third attempt should be blocked")
	}
}

func TestRedisLimiterFailsClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisLimiter(redis.Addr(), "", "test:ratelimit", 1, time.Second)
	if err != nil {
		t.Fatalf("new redis limiter: %v", err)
	}
	redis.Close()
	if limiter.Allow("alice") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestLimiterConstructorsValidate(t *testing.T) {
	if _, err := NewRedisLimiter("", "", "", 1, time.Second); err == nil {
		t.Fatalf("expected error for empty redis addr")
	}
	if _, err := NewMemoryLimiter(0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := NewRedisLimiter("127.0.0.1:6379", "", "", 1, 0); err == nil {
		t.Fatalf("expected error for zero window")
	}
}
