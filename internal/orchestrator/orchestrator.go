// Package orchestrator coordinates one scheduled multi-source fetch
// run: validate inputs, resolve the seller account and credentials,
// execute the day's jobs in four sequential batches, and reduce the
// outcomes into a single verdict. Setup failures abort the run; job
// failures never do.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"seller-data-scheduler/internal/adapter"
	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/credentials"
	"seller-data-scheduler/internal/models"
	"seller-data-scheduler/internal/notify"
	"seller-data-scheduler/internal/schedule"
	"seller-data-scheduler/internal/store"
	"seller-data-scheduler/internal/telemetry"
)

// Run states, in execution order. Failures in the setup states
// short-circuit straight to Done; once batches start the machine
// always reaches Aggregating.
const (
	stateValidatingInput        = "validating_input"
	stateResolvingConfig        = "resolving_config"
	stateResolvingSellerAccount = "resolving_seller_account"
	stateResolvingCredentials   = "resolving_credentials"
	stateResolvingTokens        = "resolving_tokens"
	stateBatches                = "batches"
	stateAggregating            = "aggregating"
)

// AccountStore is the slice of persistence the setup phases need.
type AccountStore interface {
	Ping(ctx context.Context) error
	GetSellerAccount(ctx context.Context, userID string) (models.SellerAccount, error)
}

// TrackingStore records run start/close for audit bookkeeping.
type TrackingStore interface {
	StartTracking(ctx context.Context, userID, country, region, dayName string, startDate, endDate time.Time, sessionID string) (models.TrackingEntry, error)
	CloseTracking(ctx context.Context, id, status string, errorMessage *string) error
}

// AdsDataStore serves the dependency resolver's persisted dataset.
type AdsDataStore interface {
	CampaignAndAdGroupIDs(ctx context.Context, userID, country, region string) ([]string, []string, error)
}

// CredentialResolver is the credential provider contract.
type CredentialResolver interface {
	ResolveCloudCredentials(ctx context.Context, region string) (models.CloudCredentials, error)
	ResolveTokens(ctx context.Context, userID, spRefreshToken, adsRefreshToken string) (credentials.Tokens, error)
	ReleaseTokens(ctx context.Context, userID string) error
}

// JobInvoker settles one scheduled job to an outcome, always.
type JobInvoker interface {
	Invoke(ctx context.Context, entry models.ScheduleEntry, run models.RunContext, deps adapter.ResolvedDeps) models.JobOutcome
}

// OutcomeSink observes successful outcomes (the report archive). It
// receives the run's temporary cloud credentials so writes are signed
// with them rather than any ambient credential chain.
type OutcomeSink interface {
	StoreOutcome(ctx context.Context, userID, sessionID string, creds models.CloudCredentials, outcome models.JobOutcome)
}

// Params are the entrypoint inputs. DayOverride exists solely so each
// weekday's job set can be exercised deterministically.
type Params struct {
	UserID      string
	Region      string
	Country     string
	DayOverride *int
}

// Orchestrator owns one run at a time per call; concurrent runs for
// different users are safe, concurrent runs for the same user must be
// serialized by the caller.
type Orchestrator struct {
	cfg      config.Config
	accounts AccountStore
	tracking TrackingStore
	adsData  AdsDataStore
	creds    CredentialResolver
	invoker  JobInvoker
	archive  OutcomeSink
	notifier notify.Notifier
	log      *zap.Logger
}

// New wires an orchestrator. archive and notifier may be nil.
func New(cfg config.Config, accounts AccountStore, tracking TrackingStore, adsData AdsDataStore, creds CredentialResolver, invoker JobInvoker, archive OutcomeSink, notifier notify.Notifier, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		accounts: accounts,
		tracking: tracking,
		adsData:  adsData,
		creds:    creds,
		invoker:  invoker,
		archive:  archive,
		notifier: notifier,
		log:      log,
	}
}

// RunScheduledFetch executes the full state machine for one user and
// day. It never panics out: anything uncaught becomes a 500 result and
// fails the in-flight tracking entry.
func (o *Orchestrator) RunScheduledFetch(ctx context.Context, p Params) (result models.RunResult) {
	telemetry.RunsStarted.Inc()
	telemetry.RunsInFlight.Inc()
	defer telemetry.RunsInFlight.Dec()

	var trackingID string
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("run panicked", zap.String("user_id", p.UserID), zap.Any("panic", r))
			msg := fmt.Sprintf("unexpected error: %v", r)
			if trackingID != "" {
				_ = o.tracking.CloseTracking(context.WithoutCancel(ctx), trackingID, models.TrackingFailed, &msg)
			}
			telemetry.RunsAborted.Inc()
			result = models.RunResult{Success: false, StatusCode: 500, Error: msg}
		}
	}()

	log := o.log.With(zap.String("user_id", p.UserID), zap.String("region", p.Region), zap.String("country", p.Country))

	// ValidatingInput
	if err := o.validate(ctx, p); err != nil {
		telemetry.RunsAborted.Inc()
		log.Error("input validation failed", zap.String("state", stateValidatingInput), zap.Error(err))
		return abortResult(err)
	}

	// ResolvingConfig
	day, err := o.resolveDay(p)
	if err != nil {
		telemetry.RunsAborted.Inc()
		log.Error("config resolution failed", zap.String("state", stateResolvingConfig), zap.Error(err))
		return abortResult(err)
	}
	log = log.With(zap.Int("day_of_week", day))

	// ResolvingSellerAccount
	acct, err := o.accounts.GetSellerAccount(ctx, p.UserID)
	if err != nil {
		telemetry.RunsAborted.Inc()
		log.Error("seller account resolution failed", zap.String("state", stateResolvingSellerAccount), zap.Error(err))
		if errors.Is(err, store.ErrNotFound) {
			return abortResult(&ValidationError{Field: "userId", Reason: "no seller account"})
		}
		return models.RunResult{StatusCode: 500, Error: err.Error()}
	}
	if acct.Country != p.Country || acct.Region != p.Region {
		telemetry.RunsAborted.Inc()
		return abortResult(&ConfigurationError{Reason: fmt.Sprintf("account registered for %s/%s, not %s/%s", acct.Region, acct.Country, p.Region, p.Country)})
	}

	// ResolvingCredentials
	cloudCreds, err := o.creds.ResolveCloudCredentials(ctx, p.Region)
	if err != nil {
		telemetry.RunsAborted.Inc()
		log.Error("cloud credential resolution failed", zap.String("state", stateResolvingCredentials), zap.Error(err))
		return models.RunResult{StatusCode: 500, Error: err.Error()}
	}

	// ResolvingTokens. Absent refresh tokens are not fatal here; the
	// adapter records the affected jobs as skips.
	tokens, err := o.creds.ResolveTokens(ctx, p.UserID, acct.SpRefreshToken, acct.AdsRefreshToken)
	if err != nil {
		telemetry.RunsAborted.Inc()
		log.Error("token resolution failed", zap.String("state", stateResolvingTokens), zap.Error(err))
		return models.RunResult{StatusCode: 500, Error: err.Error()}
	}
	defer func() {
		if err := o.creds.ReleaseTokens(context.WithoutCancel(ctx), p.UserID); err != nil {
			log.Warn("token release failed", zap.Error(err))
		}
	}()

	endDate := time.Now().UTC().Truncate(24 * time.Hour)
	run := models.RunContext{
		UserID:          p.UserID,
		Country:         p.Country,
		Region:          p.Region,
		DayOfWeek:       day,
		AccessToken:     tokens.AccessToken,
		AdsAccessToken:  tokens.AdsAccessToken,
		RefreshToken:    acct.SpRefreshToken,
		AdsRefreshToken: acct.AdsRefreshToken,
		ProfileID:       acct.ProfileID,
		SellerID:        acct.SellerID,
		MarketplaceIDs:  acct.MarketplaceIDs,
		CloudCreds:      cloudCreds,
		StartDate:       endDate.AddDate(0, 0, -30),
		EndDate:         endDate,
	}

	jobs := schedule.ForDay(day)
	sessionID := uuid.New().String()
	log = log.With(zap.String("session_id", sessionID))

	if acct.TrackingEnabled {
		entry, err := o.tracking.StartTracking(ctx, p.UserID, p.Country, p.Region, time.Weekday(day).String(), run.StartDate, run.EndDate, sessionID)
		if err != nil {
			// Tracking is bookkeeping; losing it degrades audit, not data.
			log.Warn("start tracking failed", zap.Error(err))
		} else {
			trackingID = entry.ID
		}
	}

	// Batch1..Batch4. Job failures degrade the outcome; the machine
	// proceeds batch by batch regardless.
	outcomes := o.runBatches(ctx, jobs, run, sessionID, log)

	// Aggregating
	summary := Aggregate(outcomes, schedule.CriticalSet())
	telemetry.RunsCompleted.Inc()
	log.Info("run aggregated",
		zap.String("state", stateAggregating),
		zap.Int("total_services", summary.TotalServices),
		zap.Int("success_percentage", summary.SuccessPercentage),
		zap.Bool("overall_success", summary.OverallSuccess))

	if trackingID != "" {
		status := models.TrackingCompleted
		var trackErr *string
		switch {
		case !summary.OverallSuccess:
			status = models.TrackingFailed
			msg := fmt.Sprintf("critical services failed: %v", summary.CriticalFailures)
			trackErr = &msg
		case len(summary.Failed) > 0:
			status = models.TrackingPartial
		}
		if err := o.tracking.CloseTracking(ctx, trackingID, status, trackErr); err != nil {
			log.Warn("close tracking failed", zap.Error(err))
		}
	}

	if o.notifier != nil && acct.NotifyOnAnalysis {
		status := models.TrackingCompleted
		if len(summary.Failed) > 0 {
			status = models.TrackingPartial
		}
		if err := o.notifier.AnalysisReady(ctx, p.UserID, status); err != nil {
			log.Warn("analysis-ready notification failed", zap.Error(err))
		}
	}

	statusCode := 200
	if len(summary.Failed) > 0 {
		statusCode = 207
	}
	return models.RunResult{
		Success:    summary.OverallSuccess,
		StatusCode: statusCode,
		Data:       outcomes,
		Summary:    &summary,
	}
}

func (o *Orchestrator) validate(ctx context.Context, p Params) error {
	switch {
	case p.UserID == "":
		return &ValidationError{Field: "userId", Reason: "required"}
	case p.Region == "":
		return &ValidationError{Field: "region", Reason: "required"}
	case p.Country == "":
		return &ValidationError{Field: "country", Reason: "required"}
	}
	if err := o.accounts.Ping(ctx); err != nil {
		return &ValidationError{Reason: fmt.Sprintf("persistence unreachable: %v", err)}
	}
	return nil
}

func (o *Orchestrator) resolveDay(p Params) (int, error) {
	if !contains(o.cfg.SupportedRegions, p.Region) {
		return 0, &ConfigurationError{Reason: "unsupported region " + p.Region}
	}
	if !contains(o.cfg.SupportedCountries, p.Country) {
		return 0, &ConfigurationError{Reason: "unsupported country " + p.Country}
	}
	if p.DayOverride != nil {
		d := *p.DayOverride
		if d < 0 || d > 6 {
			return 0, &ValidationError{Field: "dayOfWeek", Reason: fmt.Sprintf("%d outside 0..6", d)}
		}
		return d, nil
	}
	return int(time.Now().UTC().Weekday()), nil
}

// runBatches executes the day's jobs in NumBatches sequential waves.
// Each wave runs two phases: phase A resolves dependency values for
// any dependent jobs in the wave, phase B dispatches every job
// concurrently and waits for all of them to settle. Results are
// matched back to entries positionally by dispatch order.
func (o *Orchestrator) runBatches(ctx context.Context, jobs map[string]models.ScheduleEntry, run models.RunContext, sessionID string, log *zap.Logger) map[string]models.JobOutcome {
	batches := make([][]models.ScheduleEntry, schedule.NumBatches)
	for _, entry := range jobs {
		idx := entry.BatchIndex - 1
		if idx < 0 || idx >= schedule.NumBatches {
			idx = schedule.NumBatches - 1
		}
		batches[idx] = append(batches[idx], entry)
	}
	for _, batch := range batches {
		sort.Slice(batch, func(i, j int) bool { return batch[i].JobKey < batch[j].JobKey })
	}

	outcomes := make(map[string]models.JobOutcome, len(jobs))

	for i, batch := range batches {
		if len(batch) == 0 {
			continue
		}
		batchNo := i + 1
		started := time.Now()

		// Phase A: dependency values, resolved fresh at each dependent
		// batch so identifiers persisted or emitted by earlier batches
		// are visible to later ones.
		var deps adapter.ResolvedDeps
		if batchNeedsDeps(batch) {
			deps = o.resolveCampaignAndAdGroupIDs(ctx, outcomes, run)
			log.Info("dependencies resolved",
				zap.Int("batch", batchNo),
				zap.Int("campaign_ids", len(deps.CampaignIDs)),
				zap.Int("ad_group_ids", len(deps.AdGroupIDs)))
		}

		// Phase B: dispatch concurrently, settle everything.
		results := make([]models.JobOutcome, len(batch))
		var wg sync.WaitGroup
		for idx, entry := range batch {
			wg.Add(1)
			go func(idx int, entry models.ScheduleEntry) {
				defer wg.Done()
				results[idx] = o.invoker.Invoke(ctx, entry, run, deps)
			}(idx, entry)
		}
		wg.Wait()

		// Walk settled results in dispatch order.
		for idx, entry := range batch {
			outcome := results[idx]
			if outcome.JobKey == "" {
				outcome.JobKey = entry.JobKey
				outcome.DataKey = entry.DataKey
			}
			outcomes[entry.DataKey] = outcome
			if o.archive != nil && outcome.Success {
				o.archive.StoreOutcome(ctx, run.UserID, sessionID, run.CloudCreds, outcome)
			}
		}

		telemetry.BatchDuration.WithLabelValues(fmt.Sprintf("%d", batchNo)).Observe(time.Since(started).Seconds())
		log.Info("batch settled",
			zap.String("state", stateBatches),
			zap.Int("batch", batchNo),
			zap.Int("jobs", len(batch)),
			zap.Duration("took", time.Since(started)))
	}
	return outcomes
}

func batchNeedsDeps(batch []models.ScheduleEntry) bool {
	for _, entry := range batch {
		if entry.Kind == models.KindDependentAdsReport {
			return true
		}
	}
	return false
}

func abortResult(err error) models.RunResult {
	code := 500
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		code = 400
	}
	return models.RunResult{Success: false, StatusCode: code, Error: err.Error()}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
