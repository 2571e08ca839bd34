package stats

import (
	"context"
	"encoding/json"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Executor runs the dashboard's server-authored queries. These never carry
// user input, so they skip policy validation; the gateway's index allow-list
// and size clamp still apply.
type Executor interface {
	Execute(ctx context.Context, raw json.RawMessage, index string, sizeLimit int) domain.ExecutionResult
	ExecuteAggregation(ctx context.Context, raw json.RawMessage, index string) (domain.AggregationResult, error)
}
