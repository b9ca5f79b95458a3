package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"seller-data-scheduler/internal/telemetry"
)

// APIBudget is a distributed token bucket limiting outbound Amazon API
// calls per user. The bucket lives in Redis so concurrent runs for
// different users on different hosts draw from the same budget.
type APIBudget struct {
	client   *redis.Client
	capacity int
	refill   float64 // tokens per second
	ttl      time.Duration
}

// NewAPIBudget constructs a bucket with the provided capacity/refill.
func NewAPIBudget(client *redis.Client, capacity int, refillPerSecond float64, ttl time.Duration) *APIBudget {
	return &APIBudget{
		client:   client,
		capacity: capacity,
		refill:   refillPerSecond,
		ttl:      ttl,
	}
}

// UserKey namespaces bucket state per user.
func UserKey(userID string) string {
	return fmt.Sprintf("apibudget:%s", userID)
}

// Allow consumes a single token for the given key if available.
// Returns allowed flag and current token count.
func (b *APIBudget) Allow(ctx context.Context, key string) (bool, float64, error) {
	now := time.Now().UnixMilli()
	res, err := bucketScript.Run(ctx, b.client, []string{key}, b.capacity, b.refill, now, b.ttl.Milliseconds()).Result()
	if err != nil {
		return false, 0, err
	}
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 2 {
		return false, 0, err
	}
	allowed := arr[0].(int64) == 1
	var tokens float64
	switch v := arr[1].(type) {
	case int64:
		tokens = float64(v)
	case float64:
		tokens = v
	default:
		tokens = 0
	}
	return allowed, tokens, nil
}

// Wait blocks until a token is available or the context ends. The
// retry delay is derived from the refill rate, floored at 100ms.
// Calls that find the bucket empty count toward RateLimitWaits once,
// however many retries they take.
func (b *APIBudget) Wait(ctx context.Context, key string) error {
	delay := 100 * time.Millisecond
	if b.refill > 0 {
		if d := time.Duration(float64(time.Second) / b.refill); d > delay {
			delay = d
		}
	}
	waited := false
	for {
		allowed, _, err := b.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		if !waited {
			waited = true
			telemetry.RateLimitWaits.Inc()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill = tonumber(ARGV[2]) -- tokens per second
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(data[1])
local last = tonumber(data[2])
if tokens == nil then tokens = capacity end
if last == nil then last = now end

local delta = math.max(0, now - last)
local add = delta / 1000 * refill
tokens = math.min(capacity, tokens + add)

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call('HMSET', key, 'tokens', tokens, 'last_ms', now)
if ttl > 0 then redis.call('PEXPIRE', key, ttl) end
return {allowed, tokens}
`)
