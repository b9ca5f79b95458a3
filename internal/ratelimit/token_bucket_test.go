package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"seller-data-scheduler/internal/telemetry"
)

func TestAPIBudgetCapacity(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	budget := NewAPIBudget(client, 2, 1, time.Minute)

	key := UserKey("u1")
	allowed, _, err := budget.Allow(ctx, key)
	if err != nil || !allowed {
		t.Fatalf("expected first token allowed got allowed=%v err=%v", allowed, err)
	}
	allowed, _, _ = budget.Allow(ctx, key)
	if !allowed {
		t.Fatalf("expected second token allowed")
	}
	allowed, _, _ = budget.Allow(ctx, key)
	if allowed {
		t.Fatalf("expected third token to be rejected")
	}

	// Budgets are scoped per user; a different user starts full.
	allowed, _, _ = budget.Allow(ctx, UserKey("u2"))
	if !allowed {
		t.Fatalf("expected independent budget for second user")
	}

	// Note: Cannot test refill with miniredis.FastForward() because the Lua script
	// receives time from Go's time.Now(), not Redis's internal clock.
}

func TestAPIBudgetWaitHonorsContext(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	budget := NewAPIBudget(client, 1, 0.001, time.Minute)

	key := UserKey("u3")
	if err := budget.Wait(context.Background(), key); err != nil {
		t.Fatalf("first wait should pass immediately: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := budget.Wait(ctx, key); err == nil {
		t.Fatal("expected context deadline while waiting on empty bucket")
	}
}

func TestWaitCountsOnlyBlockedCalls(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	budget := NewAPIBudget(client, 1, 20, time.Minute)

	key := UserKey("u4")
	before := testutil.ToFloat64(telemetry.RateLimitWaits)

	// Bucket full: no wait is recorded.
	if err := budget.Wait(context.Background(), key); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	if got := testutil.ToFloat64(telemetry.RateLimitWaits); got != before {
		t.Fatalf("unblocked wait must not count, counter moved %v -> %v", before, got)
	}

	// Bucket empty: one delayed call counts exactly once, even if it
	// loops more than one retry before the refill lands.
	if err := budget.Wait(context.Background(), key); err != nil {
		t.Fatalf("blocked wait: %v", err)
	}
	if got := testutil.ToFloat64(telemetry.RateLimitWaits); got != before+1 {
		t.Fatalf("blocked wait must count once, counter moved %v -> %v", before, got)
	}
}
