// Package alerting evaluates alert thresholds against query results. The
// ledger only stores alerts and their last trigger time; deciding whether a
// result crossed a threshold happens here.
package alerting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Service evaluates and reports alerts.
type Service struct {
	store  AlertStore
	logger *zap.Logger
	now    func() time.Time
}

// New creates an alerting service.
func New(store AlertStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Evaluate compares hits against the alert's threshold and marks the alert
// triggered when crossed. Returns whether the alert fired.
func (s *Service) Evaluate(ctx context.Context, id int64, hits int) (bool, error) {
	alert, err := s.store.GetAlert(ctx, id)
	if err != nil {
		return false, fmt.Errorf("evaluate alert %d: %w", id, err)
	}
	if hits < alert.Threshold {
		return false, nil
	}
	if err := s.store.MarkAlertTriggered(ctx, id); err != nil {
		return false, fmt.Errorf("evaluate alert %d: %w", id, err)
	}
	s.logger.Info("alert triggered",
		zap.Int64("alert_id", id),
		zap.String("name", alert.Name),
		zap.Int("hits", hits),
		zap.Int("threshold", alert.Threshold),
	)
	return true, nil
}

// Recent returns alerts that triggered within the window, newest trigger
// first. Serves the polling endpoint that replaced the old event stream.
func (s *Service) Recent(ctx context.Context, window time.Duration) ([]domain.Alert, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	alerts, err := s.store.ListAlerts(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("recent alerts: %w", err)
	}
	cutoff := s.now().Add(-window).Unix()
	var out []domain.Alert
	for _, a := range alerts {
		if a.LastTriggerTS >= cutoff && a.LastTriggerTS > 0 {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastTriggerTS > out[j].LastTriggerTS })
	return out, nil
}
