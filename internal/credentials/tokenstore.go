package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore caches resolved access tokens per user in Redis for the
// duration of one run. Each run receives the store by reference;
// entries for different users never collide, so concurrent runs for
// different users need no coordination. Concurrent runs for the same
// user are the caller's problem to serialize.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore builds a store with the given per-entry TTL.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	if ttl == 0 {
		ttl = 50 * time.Minute
	}
	return &TokenStore{client: client, ttl: ttl}
}

func tokenKey(userID string) string {
	return fmt.Sprintf("tokens:%s", userID)
}

// Put records both tokens for the user, replacing any prior entry.
func (s *TokenStore) Put(ctx context.Context, userID, accessToken, adsAccessToken string) error {
	key := tokenKey(userID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "access_token", accessToken, "ads_access_token", adsAccessToken)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// SetAdsAccessToken replaces only the Ads token, used by the mid-poll
// refresh callback.
func (s *TokenStore) SetAdsAccessToken(ctx context.Context, userID, adsAccessToken string) error {
	key := tokenKey(userID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, "ads_access_token", adsAccessToken)
	pipe.Expire(ctx, key, s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// AccessToken returns the cached SP-API token, empty when absent.
func (s *TokenStore) AccessToken(ctx context.Context, userID string) (string, error) {
	v, err := s.client.HGet(ctx, tokenKey(userID), "access_token").Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// AdsAccessToken returns the cached Ads token, empty when absent.
func (s *TokenStore) AdsAccessToken(ctx context.Context, userID string) (string, error) {
	v, err := s.client.HGet(ctx, tokenKey(userID), "ads_access_token").Result()
	if err == redis.Nil {
		return "", nil
	}
	return v, err
}

// Clear drops the user's entry once a run finishes.
func (s *TokenStore) Clear(ctx context.Context, userID string) error {
	return s.client.Del(ctx, tokenKey(userID)).Err()
}
