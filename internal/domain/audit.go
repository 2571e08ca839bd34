package domain

// AuditRecord is one executed-query entry in the ledger. Immutable once
// written; removed only by retention pruning.
type AuditRecord struct {
	ID         int64  `json:"id"`
	Timestamp  int64  `json:"ts"`
	User       string `json:"user"`
	Index      string `json:"index"`
	Hits       int    `json:"hits"`
	DurationMS int64  `json:"duration_ms"`
	QueryJSON  string `json:"query_json"`
}

// SavedSearch is a named query a user stored for re-execution.
type SavedSearch struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	User      string `json:"user"`
	Index     string `json:"index"`
	QueryJSON string `json:"query_json"`
	CreatedTS int64  `json:"created_ts"`
}

// Alert is a stored hit-count trigger. LastTriggerTS is the only field that
// mutates after creation.
type Alert struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	User          string `json:"user"`
	Index         string `json:"index"`
	Threshold     int    `json:"threshold"`
	TimeWindow    string `json:"time_window"`
	LastTriggerTS int64  `json:"last_trigger_ts"`
	CreatedTS     int64  `json:"created_ts"`
}
