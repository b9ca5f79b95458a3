// Package notify delivers the "analysis ready" signal after a run
// aggregates. Delivery is fire-and-forget: a notifier error must never
// fail the run that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier is the downstream notification contract.
type Notifier interface {
	AnalysisReady(ctx context.Context, userID string, summaryStatus string) error
}

// WebhookNotifier posts the signal to an internal endpoint (the email
// service sits behind it).
type WebhookNotifier struct {
	endpoint   string
	httpClient *http.Client
}

// NewWebhookNotifier builds a notifier for the given endpoint.
func NewWebhookNotifier(endpoint string, timeout time.Duration) *WebhookNotifier {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (n *WebhookNotifier) AnalysisReady(ctx context.Context, userID string, summaryStatus string) error {
	body, err := json.Marshal(map[string]string{
		"event":   "analysis_ready",
		"user_id": userID,
		"status":  summaryStatus,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("notify endpoint status %d", resp.StatusCode)
	}
	return nil
}

// LogNotifier is the dev-mode stand-in when no endpoint is configured.
type LogNotifier struct {
	Log *zap.Logger
}

func (n *LogNotifier) AnalysisReady(_ context.Context, userID string, summaryStatus string) error {
	if n.Log != nil {
		n.Log.Info("analysis ready", zap.String("user_id", userID), zap.String("status", summaryStatus))
	}
	return nil
}
