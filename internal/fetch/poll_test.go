package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPollRefreshesTokenMidLoop(t *testing.T) {
	attempts := 0
	refreshes := 0

	data, err := Poll(context.Background(), PollOptions{
		AccessToken: "stale",
		MaxAttempts: 5,
		Interval:    time.Millisecond,
		Refresh: func(_ context.Context) (string, error) {
			refreshes++
			return "fresh", nil
		},
		Do: func(_ context.Context, token string) (bool, any, error) {
			attempts++
			if token == "stale" {
				return false, nil, ErrUnauthorized
			}
			if attempts < 3 {
				return false, nil, nil
			}
			return true, "report-data", nil
		},
	})
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if data != "report-data" {
		t.Fatalf("data = %v", data)
	}
	if refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", refreshes)
	}
	// The loop continued with the attempt counter intact.
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestPollBoundedAttempts(t *testing.T) {
	attempts := 0
	_, err := Poll(context.Background(), PollOptions{
		MaxAttempts: 4,
		Interval:    time.Millisecond,
		Do: func(_ context.Context, _ string) (bool, any, error) {
			attempts++
			return false, nil, nil
		},
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4", attempts)
	}
}

func TestPollPermanentError(t *testing.T) {
	boom := errors.New("report request rejected")
	attempts := 0
	_, err := Poll(context.Background(), PollOptions{
		MaxAttempts: 10,
		Interval:    time.Millisecond,
		Do: func(_ context.Context, _ string) (bool, any, error) {
			attempts++
			return false, nil, boom
		},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if attempts != 1 {
		t.Fatalf("permanent error must stop the loop, attempts = %d", attempts)
	}
}

func TestPollRefreshFailureIsTerminal(t *testing.T) {
	_, err := Poll(context.Background(), PollOptions{
		MaxAttempts: 10,
		Interval:    time.Millisecond,
		Refresh: func(_ context.Context) (string, error) {
			return "", errors.New("refresh rejected")
		},
		Do: func(_ context.Context, _ string) (bool, any, error) {
			return false, nil, ErrUnauthorized
		},
	})
	if err == nil {
		t.Fatal("expected terminal error when refresh fails")
	}
}
