package alerting

import (
	"context"

	"github.com/caldera-sec/logsift/internal/domain"
)

// AlertStore is the ledger surface the alerting service needs.
type AlertStore interface {
	GetAlert(ctx context.Context, id int64) (domain.Alert, error)
	ListAlerts(ctx context.Context, user string, limit int) ([]domain.Alert, error)
	MarkAlertTriggered(ctx context.Context, id int64) error
}
