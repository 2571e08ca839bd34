package triage

import (
	"context"
	"encoding/json"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Executor runs the triage rule batch. Rules are server-authored, so they
// skip policy validation; the gateway's guards still apply.
type Executor interface {
	ExecuteMulti(ctx context.Context, raws []json.RawMessage, index string, sizeLimit int) ([]domain.ExecutionResult, error)
}
