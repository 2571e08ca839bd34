package domain

import "encoding/json"

// GeneratedQuery is a model-produced candidate query with analyst-facing
// commentary. Query is untrusted input until it passes policy validation.
type GeneratedQuery struct {
	Query       json.RawMessage `json:"query"`
	Analysis    string          `json:"analysis,omitempty"`
	Story       string          `json:"story,omitempty"`
	Remediation string          `json:"remediation,omitempty"`
	Severity    string          `json:"severity,omitempty"`
}
