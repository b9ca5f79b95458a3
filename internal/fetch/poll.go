// Package fetch holds the low-level HTTP plumbing shared by the
// concrete report jobs: a bearer-token JSON client and the bounded
// long-poll loop used while Amazon generates a report asynchronously.
package fetch

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"

	"seller-data-scheduler/internal/telemetry"
)

// ErrUnauthorized signals an expired access token mid-poll. The poll
// loop reacts by invoking the refresh callback and continuing with the
// new token instead of restarting the loop.
var ErrUnauthorized = errors.New("fetch: unauthorized")

// errNotReady keeps the poll loop spinning while a report generates.
var errNotReady = errors.New("fetch: report not ready")

// Result is the explicit failure shape a job function may return
// instead of an error. The adapter collapses it into a JobOutcome.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// RefreshFunc obtains a fresh access token mid-operation.
type RefreshFunc func(ctx context.Context) (string, error)

// PollOptions configures one bounded poll loop.
type PollOptions struct {
	// Do performs one poll attempt with the current token. done=true
	// with data ends the loop; ErrUnauthorized triggers a token
	// refresh; any other error is terminal.
	Do          func(ctx context.Context, accessToken string) (done bool, data any, err error)
	AccessToken string
	Refresh     RefreshFunc
	MaxAttempts int
	Interval    time.Duration
}

// Poll drives Do until it reports done, the attempt budget runs out,
// or the context ends. A 401 swaps the token via Refresh and continues
// the same loop; the attempt counter is not reset.
func Poll(ctx context.Context, opts PollOptions) (any, error) {
	if opts.Do == nil {
		return nil, errors.New("fetch: poll without a Do function")
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 30
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 20 * time.Second
	}

	token := opts.AccessToken
	var data any

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(maxAttempts-1)),
		ctx,
	)

	op := func() error {
		done, d, err := opts.Do(ctx, token)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) && opts.Refresh != nil {
				fresh, refreshErr := opts.Refresh(ctx)
				if refreshErr != nil {
					return backoff.Permanent(errors.Wrap(refreshErr, "refresh token mid-poll"))
				}
				token = fresh
				telemetry.TokenRefreshes.Inc()
				return err // retry the same loop with the new token
			}
			return backoff.Permanent(err)
		}
		if !done {
			return errNotReady
		}
		data = d
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		if errors.Is(err, errNotReady) {
			return nil, errors.Newf("report not ready after %d attempts", maxAttempts)
		}
		return nil, err
	}
	return data, nil
}
