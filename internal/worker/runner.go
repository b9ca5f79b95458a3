// Package worker runs the daily sweep: once per day at a configured
// UTC hour it walks every active seller account and executes the
// scheduled fetch for each one.
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/models"
	"seller-data-scheduler/internal/orchestrator"
)

// SellerLister enumerates accounts eligible for the daily sweep.
type SellerLister interface {
	ListActiveSellers(ctx context.Context) ([]models.SellerAccount, error)
}

// FetchRunner executes one seller's scheduled run.
type FetchRunner interface {
	RunScheduledFetch(ctx context.Context, p orchestrator.Params) models.RunResult
}

// Runner polls the clock and fires the sweep at most once per UTC day.
type Runner struct {
	cfg     config.Config
	sellers SellerLister
	orch    FetchRunner
	log     *zap.Logger

	lastSweep time.Time
	now       func() time.Time
}

func NewRunner(cfg config.Config, sellers SellerLister, orch FetchRunner, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		cfg:     cfg,
		sellers: sellers,
		orch:    orch,
		log:     log,
		now:     time.Now,
	}
}

// Run blocks until ctx is cancelled, checking on every tick whether
// the daily sweep is due.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.WorkerPollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := r.now().UTC()
			if !sweepDue(now, r.lastSweep, r.cfg.RunHourUTC) {
				continue
			}
			r.lastSweep = now
			r.Sweep(ctx)
		}
	}
}

// sweepDue reports whether the configured run hour has arrived and no
// sweep has happened yet on this UTC day.
func sweepDue(now, last time.Time, runHour int) bool {
	if now.Hour() < runHour {
		return false
	}
	if last.IsZero() {
		return true
	}
	ly, lm, ld := last.UTC().Date()
	ny, nm, nd := now.Date()
	return ly != ny || lm != nm || ld != nd
}

// Sweep runs every active seller once. Runs for distinct users proceed
// concurrently up to MaxConcurrentRuns; each user appears at most once
// in the listing, so per-user serialization holds by construction.
func (r *Runner) Sweep(ctx context.Context) {
	sellers, err := r.sellers.ListActiveSellers(ctx)
	if err != nil {
		r.log.Error("list active sellers", zap.Error(err))
		return
	}
	r.log.Info("daily sweep starting", zap.Int("sellers", len(sellers)))

	limit := r.cfg.MaxConcurrentRuns
	if limit < 1 {
		limit = 1
	}
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for _, acct := range sellers {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(acct models.SellerAccount) {
			defer wg.Done()
			defer func() { <-sem }()
			result := r.orch.RunScheduledFetch(ctx, orchestrator.Params{
				UserID:  acct.UserID,
				Region:  acct.Region,
				Country: acct.Country,
			})
			if result.Success {
				r.log.Info("seller run finished",
					zap.String("user_id", acct.UserID),
					zap.Int("status", result.StatusCode))
			} else {
				r.log.Warn("seller run failed",
					zap.String("user_id", acct.UserID),
					zap.Int("status", result.StatusCode),
					zap.String("error", result.Error))
			}
		}(acct)
	}
	wg.Wait()
	r.log.Info("daily sweep finished", zap.Int("sellers", len(sellers)))
}
