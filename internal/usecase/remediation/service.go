// Package remediation forwards analyst-triggered response actions to a
// configured SOAR webhook.
package remediation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Receipt acknowledges a triggered remediation action.
type Receipt struct {
	Action      string `json:"action"`
	Timestamp   string `json:"timestamp"`
	TriggeredBy string `json:"triggered_by"`
	WebhookSent bool   `json:"webhook_sent"`
	Target      string `json:"target"`
}

// webhookTarget labels the orchestration endpoint in receipts.
const webhookTarget = "SOAR-Webhook-01"

// Service delivers remediation triggers to an external webhook.
type Service struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// New creates a Service. An empty webhookURL disables delivery; triggers
// are still acknowledged and logged.
func New(webhookURL string, logger *zap.Logger) *Service {
	return &Service{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 5 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
}

// Trigger posts the action to the webhook and returns a receipt. Delivery
// failures are logged and swallowed so the analyst still gets an
// acknowledgement; Receipt.WebhookSent reports whether delivery succeeded.
func (s *Service) Trigger(ctx context.Context, action, analyst string) Receipt {
	ts := s.now().UTC().Format("2006-01-02T15:04:05Z")
	receipt := Receipt{
		Action:      action,
		Timestamp:   ts,
		TriggeredBy: analyst,
		Target:      webhookTarget,
	}

	s.logger.Info("remediation triggered",
		zap.String("action", action),
		zap.String("analyst", analyst),
	)

	if s.webhookURL == "" {
		return receipt
	}

	payload, err := json.Marshal(map[string]string{
		"text":   fmt.Sprintf("SIEM remediation triggered\nAction: %s\nAnalyst: %s\nTimestamp: %s", action, analyst, ts),
		"action": action,
		"user":   analyst,
	})
	if err != nil {
		s.logger.Error("remediation webhook payload failed", zap.Error(err))
		return receipt
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("remediation webhook request failed", zap.Error(err))
		return receipt
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("remediation webhook failed", zap.Error(err))
		return receipt
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		s.logger.Error("remediation webhook rejected", zap.Int("status", resp.StatusCode))
		return receipt
	}

	receipt.WebhookSent = true
	s.logger.Info("remediation webhook sent", zap.String("action", action))
	return receipt
}
