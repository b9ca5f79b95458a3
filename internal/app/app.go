// Package app wires the shared dependency graph used by both the API
// and worker binaries.
package app

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"seller-data-scheduler/internal/adapter"
	"seller-data-scheduler/internal/archive"
	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/credentials"
	"seller-data-scheduler/internal/fetch"
	"seller-data-scheduler/internal/jobs"
	"seller-data-scheduler/internal/notify"
	"seller-data-scheduler/internal/orchestrator"
	"seller-data-scheduler/internal/ratelimit"
	"seller-data-scheduler/internal/store"
)

// NewLogger picks the zap preset for the configured environment.
func NewLogger(env string) (*zap.Logger, error) {
	if env == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// BuildOrchestrator assembles the full run pipeline: Redis-backed
// token store and API budget, STS + LWA credential provider, the job
// registry over both API clients, the adapter, the archiver and the
// notifier.
func BuildOrchestrator(ctx context.Context, cfg config.Config, st *store.Store, logger *zap.Logger) (*orchestrator.Orchestrator, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	tokenStore := credentials.NewTokenStore(redisClient, cfg.TokenCacheTTL)
	budget := ratelimit.NewAPIBudget(redisClient, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	stsClient := sts.NewFromConfig(awsCfg)

	spLWA := credentials.NewLWAClient(cfg.TokenEndpoint, cfg.LWAClientID, cfg.LWAClientSecret, 30*time.Second)
	adsLWA := credentials.NewLWAClient(cfg.AdsTokenEndpoint, cfg.AdsClientID, cfg.AdsClientSecret, 30*time.Second)
	provider := credentials.NewProvider(spLWA, adsLWA, stsClient, cfg.CloudRoleARN, int32(cfg.CloudSessionTTL.Seconds()), tokenStore, logger)

	spClient := fetch.NewClient(cfg.SpApiEndpoint, cfg.FetchTimeout)
	adsClient := fetch.NewClient(cfg.AdsApiEndpoint, cfg.FetchTimeout)
	registry := jobs.BuildRegistry(cfg, spClient, adsClient, st)
	invoker := adapter.New(registry, budget, tokenStore, provider.MakeRefreshCallback, logger)

	archiver := archive.New(cfg, logger)

	var notifier notify.Notifier = &notify.LogNotifier{Log: logger}
	if cfg.NotifyEndpoint != "" {
		notifier = notify.NewWebhookNotifier(cfg.NotifyEndpoint, 10*time.Second)
	}

	return orchestrator.New(cfg, st, st, st, provider, invoker, archiver, notifier, logger), nil
}
