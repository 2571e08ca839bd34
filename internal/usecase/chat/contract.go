package chat

import (
	"context"
	"encoding/json"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Generator produces candidate queries from analyst questions. Its output
// is untrusted and always passes through policy validation.
type Generator interface {
	Generate(ctx context.Context, question string, s domain.Schema, knowledge string) (domain.GeneratedQuery, error)
}

// Knowledge supplies attack-technique context for the generator prompt.
type Knowledge interface {
	Lookup(ctx context.Context, question string, k int) string
}

// Executor runs validated queries against the search backend.
type Executor interface {
	Execute(ctx context.Context, raw json.RawMessage, index string, sizeLimit int) domain.ExecutionResult
	ExecuteAggregation(ctx context.Context, raw json.RawMessage, index string) (domain.AggregationResult, error)
}

// SchemaProvider resolves the flattened field schema for an index.
type SchemaProvider interface {
	Get(ctx context.Context, index string) (domain.Schema, error)
}

// Recorder appends executed queries to the audit ledger.
type Recorder interface {
	Record(ctx context.Context, user, index string, hits int, durationMS int64, queryJSON string) error
}

// RateLimiter throttles per-user request rates.
type RateLimiter interface {
	Allow(key string) bool
}
