package archive

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"seller-data-scheduler/internal/config"
	"seller-data-scheduler/internal/models"
)

type recordingUploader struct {
	keys []string
}

func (r *recordingUploader) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	r.keys = append(r.keys, key)
	return key, nil
}

func TestStoreOutcomeLocal(t *testing.T) {
	dir := t.TempDir()
	a := New(config.Config{ArchiveDir: dir}, nil)

	outcome := models.JobOutcome{
		JobKey:  "performanceReport",
		DataKey: "performanceReport",
		Success: true,
		Data:    map[string]any{"rows": 3},
	}
	a.StoreOutcome(context.Background(), "u1", "s1", models.CloudCredentials{}, outcome)

	matches, err := filepath.Glob(filepath.Join(dir, "u1", "*", "s1", "performanceReport.json"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("archived file not found: matches=%v err=%v", matches, err)
	}
	body, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	var stored models.JobOutcome
	if err := json.Unmarshal(body, &stored); err != nil {
		t.Fatalf("unmarshal archive: %v", err)
	}
	if stored.JobKey != "performanceReport" || !stored.Success {
		t.Fatalf("stored outcome %+v", stored)
	}
}

func TestStoreOutcomeSkipsFailures(t *testing.T) {
	dir := t.TempDir()
	a := New(config.Config{ArchiveDir: dir}, nil)

	a.StoreOutcome(context.Background(), "u1", "s1", models.CloudCredentials{},
		models.JobOutcome{JobKey: "ppcBySku", DataKey: "ppcBySku", Success: false, Error: "timeout"})

	matches, _ := filepath.Glob(filepath.Join(dir, "u1", "*", "s1", "*"))
	if len(matches) != 0 {
		t.Fatalf("failed outcome must not be archived, found %v", matches)
	}
}

func TestStoreOutcomeSignsWithRunCredentials(t *testing.T) {
	var seen []models.CloudCredentials
	builds := 0
	up := &recordingUploader{}

	a := New(config.Config{ArchiveBucket: "reports"}, nil)
	a.s3Factory = func(_ context.Context, _ config.Config, creds models.CloudCredentials) (uploader, error) {
		builds++
		seen = append(seen, creds)
		return up, nil
	}

	outcome := models.JobOutcome{JobKey: "campaignData", DataKey: "campaignData", Success: true, Data: "ok"}
	runA := models.CloudCredentials{AccessKey: "AKA", SecretKey: "s1", SessionToken: "tokA"}
	runB := models.CloudCredentials{AccessKey: "AKB", SecretKey: "s2", SessionToken: "tokB"}

	a.StoreOutcome(context.Background(), "u1", "s1", runA, outcome)
	a.StoreOutcome(context.Background(), "u1", "s1", runA, outcome)
	a.StoreOutcome(context.Background(), "u1", "s2", runB, outcome)

	if builds != 2 {
		t.Fatalf("uploader built %d times, want once per credential set", builds)
	}
	if seen[0].AccessKey != "AKA" || seen[0].SessionToken != "tokA" {
		t.Fatalf("first build credentials %+v, want the run's set", seen[0])
	}
	if seen[1].AccessKey != "AKB" {
		t.Fatalf("rotated credentials not used, got %+v", seen[1])
	}
	if len(up.keys) != 3 {
		t.Fatalf("uploaded %d objects, want 3", len(up.keys))
	}
}

func TestStoreOutcomeDestinationFailureSwallowed(t *testing.T) {
	a := New(config.Config{ArchiveBucket: "reports"}, nil)
	a.s3Factory = func(context.Context, config.Config, models.CloudCredentials) (uploader, error) {
		return nil, errors.New("sts rejected the session")
	}

	// Must not panic or propagate.
	a.StoreOutcome(context.Background(), "u1", "s1",
		models.CloudCredentials{AccessKey: "AK"},
		models.JobOutcome{JobKey: "campaignData", DataKey: "campaignData", Success: true, Data: "ok"})
}
