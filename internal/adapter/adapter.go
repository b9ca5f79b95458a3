// Package adapter presents every heterogeneous job function behind one
// calling convention and normalizes whatever comes back into a
// JobOutcome. Nothing a job does (error, failure shape, panic) may
// escape Invoke.
package adapter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"seller-data-scheduler/internal/credentials"
	"seller-data-scheduler/internal/fetch"
	"seller-data-scheduler/internal/models"
	"seller-data-scheduler/internal/ratelimit"
	"seller-data-scheduler/internal/telemetry"
)

// Args is the uniform argument bundle handed to job functions. Each
// job kind reads the slice of it that its calling convention needs.
type Args struct {
	UserID          string
	Country         string
	Region          string
	AccessToken     string
	AdsAccessToken  string
	RefreshToken    string
	ProfileID       string
	SellerID        string
	MarketplaceIDs  []string
	StartDate       time.Time
	EndDate         time.Time
	CampaignIDs     []string
	AdGroupIDs      []string
	RefreshCallback fetch.RefreshFunc
}

// JobFunc is the contract every external job satisfies. It may return
// a payload, a fetch.Result failure shape, an error, or panic; the
// adapter normalizes all four.
type JobFunc func(ctx context.Context, args Args) (any, error)

// Registry maps job keys to their functions.
type Registry map[string]JobFunc

// ResolvedDeps carries cross-batch identifiers into dependent jobs.
type ResolvedDeps struct {
	CampaignIDs []string
	AdGroupIDs  []string
}

// Adapter invokes job functions with the right credential slice and a
// per-user API budget. The TokenStore is the explicit, run-scoped
// replacement for a process-wide token cache.
type Adapter struct {
	registry Registry
	budget   *ratelimit.APIBudget
	tokens   *credentials.TokenStore
	refresh  func(userID, adsRefreshToken string) fetch.RefreshFunc
	log      *zap.Logger
}

// New builds an adapter. budget and tokens may be nil in tests.
func New(registry Registry, budget *ratelimit.APIBudget, tokens *credentials.TokenStore, refresh func(userID, adsRefreshToken string) fetch.RefreshFunc, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{
		registry: registry,
		budget:   budget,
		tokens:   tokens,
		refresh:  refresh,
		log:      log,
	}
}

// Invoke runs one scheduled job and always settles to a JobOutcome.
func (a *Adapter) Invoke(ctx context.Context, entry models.ScheduleEntry, run models.RunContext, deps ResolvedDeps) models.JobOutcome {
	outcome := models.JobOutcome{JobKey: entry.JobKey, DataKey: entry.DataKey}

	if msg, ok := a.missingCredential(ctx, entry, &run); !ok {
		outcome.Success = false
		outcome.Skipped = true
		outcome.Error = msg
		a.log.Info("job skipped",
			zap.String("job_key", entry.JobKey),
			zap.String("user_id", run.UserID),
			zap.String("reason", "credential_missing"),
			zap.String("detail", msg))
		telemetry.JobSkips.Inc()
		return outcome
	}

	fn, ok := a.registry[entry.JobKey]
	if !ok {
		outcome.Error = fmt.Sprintf("no job function registered for %s", entry.JobKey)
		return outcome
	}

	if entry.Kind != models.KindPureCalculation && a.budget != nil {
		if err := a.budget.Wait(ctx, ratelimit.UserKey(run.UserID)); err != nil {
			outcome.Error = fmt.Sprintf("api budget: %v", err)
			return outcome
		}
	}

	raw, err := a.call(ctx, fn, a.buildArgs(entry, run, deps))
	return a.normalize(outcome, raw, err, run.UserID)
}

// missingCredential checks the entry's requirement against the run
// context, falling back to the TokenStore for tokens resolved earlier
// in the run. Returns a descriptive message when the check fails.
func (a *Adapter) missingCredential(ctx context.Context, entry models.ScheduleEntry, run *models.RunContext) (string, bool) {
	switch entry.Credential {
	case models.CredentialSpApi:
		if run.AccessToken == "" && a.tokens != nil {
			run.AccessToken, _ = a.tokens.AccessToken(ctx, run.UserID)
		}
		if run.AccessToken == "" {
			return "SP-API token not available", false
		}
	case models.CredentialAdsApi:
		if run.AdsAccessToken == "" && a.tokens != nil {
			run.AdsAccessToken, _ = a.tokens.AdsAccessToken(ctx, run.UserID)
		}
		if run.AdsAccessToken == "" {
			return "Ads token not available", false
		}
	case models.CredentialRefreshToken:
		if run.RefreshToken == "" {
			return "refresh token not available", false
		}
	}
	return "", true
}

// buildArgs assembles the argument bundle per the entry's kind, making
// each calling convention explicit instead of dispatching on job-key
// strings.
func (a *Adapter) buildArgs(entry models.ScheduleEntry, run models.RunContext, deps ResolvedDeps) Args {
	args := Args{
		UserID:    run.UserID,
		Country:   run.Country,
		Region:    run.Region,
		StartDate: run.StartDate,
		EndDate:   run.EndDate,
	}
	switch entry.Kind {
	case models.KindSpApiReport:
		args.AccessToken = run.AccessToken
		args.RefreshToken = run.RefreshToken
		args.SellerID = run.SellerID
		args.MarketplaceIDs = run.MarketplaceIDs
	case models.KindAdsReport:
		args.AdsAccessToken = run.AdsAccessToken
		args.ProfileID = run.ProfileID
	case models.KindDependentAdsReport:
		args.AdsAccessToken = run.AdsAccessToken
		args.ProfileID = run.ProfileID
		args.CampaignIDs = deps.CampaignIDs
		args.AdGroupIDs = deps.AdGroupIDs
	case models.KindPureCalculation:
		// userID/country/region only.
	}
	if a.refresh != nil && (entry.Kind == models.KindAdsReport || entry.Kind == models.KindDependentAdsReport) {
		args.RefreshCallback = a.refresh(run.UserID, run.AdsRefreshToken)
	}
	return args
}

// call shields the batch runner from panicking jobs.
func (a *Adapter) call(ctx context.Context, fn JobFunc, args Args) (raw any, err error) {
	defer func() {
		if r := recover(); r != nil {
			raw = nil
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx, args)
}

// normalize collapses the three raw failure shapes into one record.
func (a *Adapter) normalize(outcome models.JobOutcome, raw any, err error, userID string) models.JobOutcome {
	switch {
	case err != nil:
		outcome.Error = err.Error()
	case raw == false:
		outcome.Error = "job reported failure"
	default:
		if res, ok := raw.(fetch.Result); ok {
			if !res.Success {
				outcome.Error = res.Message
				if outcome.Error == "" {
					outcome.Error = "job reported failure"
				}
				break
			}
			raw = res.Data
		}
		outcome.Success = true
		outcome.Data = raw
	}

	if outcome.Success {
		telemetry.JobSuccesses.Inc()
	} else {
		telemetry.JobFailures.Inc()
		a.log.Warn("job failed",
			zap.String("job_key", outcome.JobKey),
			zap.String("user_id", userID),
			zap.String("error", outcome.Error))
	}
	return outcome
}
