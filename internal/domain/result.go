package domain

import "encoding/json"

// ExecutionStatus is the terminal state of one gateway dispatch.
type ExecutionStatus string

const (
	StatusSuccess ExecutionStatus = "success"
	StatusError   ExecutionStatus = "error"
)

// ExecutionResult is the normalized outcome of a search dispatch. Data holds
// the flattened _source documents; Synthetic marks demonstration-mode
// substitutes so callers can flag them.
type ExecutionResult struct {
	Status    ExecutionStatus  `json:"status"`
	TotalHits int              `json:"total_hits"`
	Data      []map[string]any `json:"data"`
	Error     string           `json:"error,omitempty"`
	Synthetic bool             `json:"is_synthetic"`
}

// AggregationResult carries raw aggregation buckets keyed by aggregation
// name, exactly as the backend returned them.
type AggregationResult struct {
	Aggregations map[string]json.RawMessage `json:"aggregations"`
	Synthetic    bool                       `json:"is_synthetic"`
}
