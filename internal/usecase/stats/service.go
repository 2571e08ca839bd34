// Package stats assembles the dashboard metrics: 24-hour event totals,
// high-severity counts, and the chart aggregations, all computed by the
// search backend.
package stats

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Dashboard is the stats payload.
type Dashboard struct {
	TotalEvents  int                        `json:"totalEvents"`
	HighSeverity int                        `json:"highSeverity"`
	ActiveAgents int                        `json:"activeAgents"`
	TopAttacker  string                     `json:"topAttacker"`
	RiskScoring  []RiskEntry                `json:"riskScoring"`
	Aggregations map[string]json.RawMessage `json:"aggregations"`
	Synthetic    bool                       `json:"isSynthetic"`
}

// RiskEntry is one entity in the risk ranking.
type RiskEntry struct {
	Entity string  `json:"entity"`
	Score  float64 `json:"score"`
}

// Service computes dashboard stats.
type Service struct {
	exec   Executor
	logger *zap.Logger
}

// New creates a stats service.
func New(exec Executor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{exec: exec, logger: logger}
}

const totalQuery = `{"size": 0, "query": {"range": {"@timestamp": {"gte": "now-24h"}}}}`

const highSeverityQuery = `{
	"size": 0,
	"query": {"bool": {"must": [
		{"range": {"@timestamp": {"gte": "now-24h"}}},
		{"range": {"rule.level": {"gte": 10}}}
	]}}
}`

const dashboardAggs = `{
	"size": 0,
	"aggs": {
		"by_time": {"date_histogram": {"field": "@timestamp", "fixed_interval": "1h"}},
		"top_terms": {"terms": {"field": "rule.description", "size": 10}},
		"active_agents": {"cardinality": {"field": "agent.name"}},
		"top_attacker": {"terms": {"field": "source.ip", "size": 1}},
		"risk_scoring": {
			"terms": {"field": "agent.name", "size": 5},
			"aggs": {"score": {"sum": {"field": "rule.level"}}}
		}
	}
}`

// Dashboard computes the stats for one index. Count queries that fail are
// reported as zero rather than failing the whole dashboard.
func (s *Service) Dashboard(ctx context.Context, index string) (Dashboard, error) {
	d := Dashboard{TopAttacker: "N/A"}

	total := s.exec.Execute(ctx, json.RawMessage(totalQuery), index, 0)
	if total.Status == domain.StatusSuccess {
		d.TotalEvents = total.TotalHits
		d.Synthetic = total.Synthetic
	}

	high := s.exec.Execute(ctx, json.RawMessage(highSeverityQuery), index, 0)
	if high.Status == domain.StatusSuccess {
		d.HighSeverity = high.TotalHits
	}

	aggs, err := s.exec.ExecuteAggregation(ctx, json.RawMessage(dashboardAggs), index)
	if err != nil {
		return Dashboard{}, fmt.Errorf("dashboard aggregations: %w", err)
	}
	d.Aggregations = aggs.Aggregations
	d.Synthetic = d.Synthetic || aggs.Synthetic

	d.ActiveAgents = cardinalityValue(aggs.Aggregations["active_agents"])
	d.TopAttacker = topBucketKey(aggs.Aggregations["top_attacker"], "N/A")
	d.RiskScoring = riskEntries(aggs.Aggregations["risk_scoring"])

	return d, nil
}

func cardinalityValue(raw json.RawMessage) int {
	var v struct {
		Value float64 `json:"value"`
	}
	if raw == nil || json.Unmarshal(raw, &v) != nil {
		return 0
	}
	return int(v.Value)
}

func topBucketKey(raw json.RawMessage, fallback string) string {
	var v struct {
		Buckets []struct {
			Key any `json:"key"`
		} `json:"buckets"`
	}
	if raw == nil || json.Unmarshal(raw, &v) != nil || len(v.Buckets) == 0 {
		return fallback
	}
	if s, ok := v.Buckets[0].Key.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v.Buckets[0].Key)
}

func riskEntries(raw json.RawMessage) []RiskEntry {
	var v struct {
		Buckets []struct {
			Key   string `json:"key"`
			Score struct {
				Value float64 `json:"value"`
			} `json:"score"`
		} `json:"buckets"`
	}
	if raw == nil || json.Unmarshal(raw, &v) != nil {
		return nil
	}
	out := make([]RiskEntry, 0, len(v.Buckets))
	for _, b := range v.Buckets {
		out = append(out, RiskEntry{Entity: b.Key, Score: b.Score.Value})
	}
	return out
}
