// Package triage runs a fixed batch of detection rules in one round trip
// and ranks entities by a weighted risk score. Rules run atomically: a
// failure in any batch entry fails the whole triage pass.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// rule is one detection in the triage batch. Weight is the risk added per
// matching event to the event's user entity.
type rule struct {
	Name   string
	Query  string
	Weight int
}

var rules = []rule{
	{
		Name:   "Failed logons",
		Weight: 2,
		Query: `{"size": 100, "query": {"bool": {"must": [
			{"term": {"event.action": "logon-failure"}},
			{"range": {"@timestamp": {"gte": "now-24h"}}}
		]}}}`,
	},
	{
		Name:   "RDP connections",
		Weight: 1,
		Query: `{"size": 100, "query": {"bool": {"must": [
			{"term": {"destination.port": 3389}},
			{"range": {"@timestamp": {"gte": "now-24h"}}}
		]}}}`,
	},
	{
		Name:   "Shadow file access",
		Weight: 3,
		Query: `{"size": 100, "query": {"bool": {"must": [
			{"term": {"file.path": "/etc/shadow"}},
			{"range": {"@timestamp": {"gte": "now-24h"}}}
		]}}}`,
	},
}

const maxSamples = 5

// EntityRisk is one ranked entity with sample events that contributed.
type EntityRisk struct {
	Entity  string           `json:"entity"`
	Risk    int              `json:"risk"`
	Samples []map[string]any `json:"samples,omitempty"`
}

// Report is the outcome of one triage pass.
type Report struct {
	Entities  []EntityRisk `json:"entities"`
	Synthetic bool         `json:"isSynthetic"`
}

// RuleHits is one detection rule's hit count.
type RuleHits struct {
	Name string `json:"rule"`
	Hits int    `json:"hits"`
}

// Coverage reports which detections saw matching events.
type Coverage struct {
	Percent int        `json:"percent"`
	Rules   []RuleHits `json:"rules"`
}

// Service runs triage passes.
type Service struct {
	exec   Executor
	logger *zap.Logger
}

// New creates a triage service.
func New(exec Executor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{exec: exec, logger: logger}
}

// Run executes the rule batch and ranks the top entities by weighted risk.
func (s *Service) Run(ctx context.Context, index string) (Report, error) {
	results, err := s.exec.ExecuteMulti(ctx, ruleQueries(), index, 100)
	if err != nil {
		return Report{}, fmt.Errorf("triage batch: %w", err)
	}

	scores := make(map[string]int)
	samples := make(map[string][]map[string]any)
	synthetic := false
	for i, res := range results {
		synthetic = synthetic || res.Synthetic
		for _, event := range res.Data {
			entity := entityOf(event)
			scores[entity] += rules[i].Weight
			if len(samples[entity]) < maxSamples {
				samples[entity] = append(samples[entity], event)
			}
		}
	}

	ranked := make([]EntityRisk, 0, len(scores))
	for entity, risk := range scores {
		ranked = append(ranked, EntityRisk{Entity: entity, Risk: risk, Samples: samples[entity]})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Risk != ranked[j].Risk {
			return ranked[i].Risk > ranked[j].Risk
		}
		return ranked[i].Entity < ranked[j].Entity
	})
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}

	return Report{Entities: ranked, Synthetic: synthetic}, nil
}

// Coverage reports the share of detection rules with at least one hit.
func (s *Service) Coverage(ctx context.Context, index string) (Coverage, error) {
	results, err := s.exec.ExecuteMulti(ctx, countQueries(), index, 0)
	if err != nil {
		return Coverage{}, fmt.Errorf("coverage batch: %w", err)
	}

	cov := Coverage{Rules: make([]RuleHits, 0, len(rules))}
	firing := 0
	for i, res := range results {
		cov.Rules = append(cov.Rules, RuleHits{Name: rules[i].Name, Hits: res.TotalHits})
		if res.TotalHits > 0 {
			firing++
		}
	}
	cov.Percent = 100 * firing / len(rules)
	return cov, nil
}

func ruleQueries() []json.RawMessage {
	out := make([]json.RawMessage, len(rules))
	for i, r := range rules {
		out[i] = json.RawMessage(r.Query)
	}
	return out
}

// countQueries rewrites each rule to size 0 for count-only execution.
func countQueries() []json.RawMessage {
	out := make([]json.RawMessage, len(rules))
	for i, r := range rules {
		var doc map[string]any
		if err := json.Unmarshal([]byte(r.Query), &doc); err != nil {
			out[i] = json.RawMessage(r.Query)
			continue
		}
		doc["size"] = 0
		b, err := json.Marshal(doc)
		if err != nil {
			out[i] = json.RawMessage(r.Query)
			continue
		}
		out[i] = b
	}
	return out
}

func entityOf(event map[string]any) string {
	if u, ok := event["user.name"].(string); ok && u != "" {
		return u
	}
	if u, ok := event["user"].(string); ok && u != "" {
		return u
	}
	return "unknown"
}
