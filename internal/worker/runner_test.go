package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/models"
	"seller-data-scheduler/internal/orchestrator"
)

type fakeLister struct {
	sellers []models.SellerAccount
	err     error
}

func (f *fakeLister) ListActiveSellers(context.Context) ([]models.SellerAccount, error) {
	return f.sellers, f.err
}

type countingRunner struct {
	mu       sync.Mutex
	users    []string
	inFlight int
	peak     int
	delay    time.Duration
}

func (c *countingRunner) RunScheduledFetch(_ context.Context, p orchestrator.Params) models.RunResult {
	c.mu.Lock()
	c.users = append(c.users, p.UserID)
	c.inFlight++
	if c.inFlight > c.peak {
		c.peak = c.inFlight
	}
	c.mu.Unlock()

	time.Sleep(c.delay)

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()
	return models.RunResult{Success: true, StatusCode: 200}
}

func TestSweepDue(t *testing.T) {
	day := func(d, hour int) time.Time {
		return time.Date(2026, 3, d, hour, 0, 0, 0, time.UTC)
	}
	cases := []struct {
		name string
		now  time.Time
		last time.Time
		want bool
	}{
		{"before run hour", day(10, 2), time.Time{}, false},
		{"at run hour never run", day(10, 3), time.Time{}, true},
		{"already ran today", day(10, 5), day(10, 3), false},
		{"next day", day(11, 3), day(10, 3), true},
	}
	for _, tc := range cases {
		if got := sweepDue(tc.now, tc.last, 3); got != tc.want {
			t.Errorf("%s: sweepDue = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSweepRunsEverySeller(t *testing.T) {
	sellers := []models.SellerAccount{
		{UserID: "u1", Region: "NA", Country: "US"},
		{UserID: "u2", Region: "EU", Country: "DE"},
		{UserID: "u3", Region: "FE", Country: "JP"},
	}
	runner := &countingRunner{}
	cfg := config.Config{MaxConcurrentRuns: 2}
	r := NewRunner(cfg, &fakeLister{sellers: sellers}, runner, nil)

	r.Sweep(context.Background())

	if len(runner.users) != 3 {
		t.Fatalf("ran %d sellers, want 3", len(runner.users))
	}
	seen := map[string]bool{}
	for _, u := range runner.users {
		if seen[u] {
			t.Errorf("user %s ran twice", u)
		}
		seen[u] = true
	}
}

func TestSweepBoundsConcurrency(t *testing.T) {
	var sellers []models.SellerAccount
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		sellers = append(sellers, models.SellerAccount{UserID: id, Region: "NA", Country: "US"})
	}
	runner := &countingRunner{delay: 20 * time.Millisecond}
	cfg := config.Config{MaxConcurrentRuns: 2}
	r := NewRunner(cfg, &fakeLister{sellers: sellers}, runner, nil)

	r.Sweep(context.Background())

	if runner.peak > 2 {
		t.Fatalf("peak concurrency %d exceeded limit 2", runner.peak)
	}
	if len(runner.users) != 6 {
		t.Fatalf("ran %d sellers, want 6", len(runner.users))
	}
}

func TestRunFiresOnTick(t *testing.T) {
	sellers := []models.SellerAccount{{UserID: "u1", Region: "NA", Country: "US"}}
	runner := &countingRunner{}
	cfg := config.Config{MaxConcurrentRuns: 1, WorkerPollEvery: 5 * time.Millisecond, RunHourUTC: 3}
	r := NewRunner(cfg, &fakeLister{sellers: sellers}, runner, nil)
	r.now = func() time.Time { return time.Date(2026, 3, 10, 4, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = r.Run(ctx)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.users) != 1 {
		t.Fatalf("sweep ran %d times, want exactly 1", len(runner.users))
	}
}
