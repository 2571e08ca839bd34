package stats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/domain"
)

type mockExecutor struct {
	results []domain.ExecutionResult
	calls   int
	aggs    domain.AggregationResult
	aggsErr error
}

func (m *mockExecutor) Execute(_ context.Context, _ json.RawMessage, _ string, _ int) domain.ExecutionResult {
	r := m.results[m.calls]
	m.calls++
	return r
}

func (m *mockExecutor) ExecuteAggregation(_ context.Context, _ json.RawMessage, _ string) (domain.AggregationResult, error) {
	return m.aggs, m.aggsErr
}

func TestDashboard(t *testing.T) {
	exec := &mockExecutor{
		results: []domain.ExecutionResult{
			{Status: domain.StatusSuccess, TotalHits: 1200},
			{Status: domain.StatusSuccess, TotalHits: 37},
		},
		aggs: domain.AggregationResult{Aggregations: map[string]json.RawMessage{
			"active_agents": json.RawMessage(`{"value": 4}`),
			"top_attacker":  json.RawMessage(`{"buckets": [{"key": "203.0.113.10", "doc_count": 55}]}`),
			"risk_scoring": json.RawMessage(`{"buckets": [
				{"key": "dc-01", "score": {"value": 91}},
				{"key": "web-01", "score": {"value": 14}}
			]}`),
			"by_time": json.RawMessage(`{"buckets": []}`),
		}},
	}

	d, err := New(exec, zap.NewNop()).Dashboard(context.Background(), "siem-logs")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if d.TotalEvents != 1200 || d.HighSeverity != 37 {
		t.Errorf("counts = %d/%d, want 1200/37", d.TotalEvents, d.HighSeverity)
	}
	if d.ActiveAgents != 4 {
		t.Errorf("ActiveAgents = %d, want 4", d.ActiveAgents)
	}
	if d.TopAttacker != "203.0.113.10" {
		t.Errorf("TopAttacker = %q", d.TopAttacker)
	}
	if len(d.RiskScoring) != 2 || d.RiskScoring[0].Entity != "dc-01" || d.RiskScoring[0].Score != 91 {
		t.Errorf("RiskScoring = %+v", d.RiskScoring)
	}
	if exec.calls != 2 {
		t.Errorf("count queries executed = %d, want 2", exec.calls)
	}
}

func TestDashboardCountFailureIsZero(t *testing.T) {
	exec := &mockExecutor{
		results: []domain.ExecutionResult{
			{Status: domain.StatusError, Error: "backend down"},
			{Status: domain.StatusError, Error: "backend down"},
		},
		aggs: domain.AggregationResult{Aggregations: map[string]json.RawMessage{}},
	}

	d, err := New(exec, zap.NewNop()).Dashboard(context.Background(), "siem-logs")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if d.TotalEvents != 0 || d.HighSeverity != 0 {
		t.Errorf("counts = %d/%d, want zeros on failure", d.TotalEvents, d.HighSeverity)
	}
	if d.TopAttacker != "N/A" {
		t.Errorf("TopAttacker = %q, want N/A fallback", d.TopAttacker)
	}
}

func TestDashboardAggregationFailure(t *testing.T) {
	exec := &mockExecutor{
		results: []domain.ExecutionResult{
			{Status: domain.StatusSuccess, TotalHits: 1},
			{Status: domain.StatusSuccess, TotalHits: 1},
		},
		aggsErr: errors.New("timeout"),
	}

	_, err := New(exec, zap.NewNop()).Dashboard(context.Background(), "siem-logs")
	if err == nil {
		t.Fatal("expected error when aggregations fail")
	}
}

func TestDashboardSyntheticFlag(t *testing.T) {
	exec := &mockExecutor{
		results: []domain.ExecutionResult{
			{Status: domain.StatusSuccess, TotalHits: 10, Synthetic: true},
			{Status: domain.StatusSuccess, TotalHits: 2, Synthetic: true},
		},
		aggs: domain.AggregationResult{
			Aggregations: map[string]json.RawMessage{},
			Synthetic:    true,
		},
	}

	d, err := New(exec, zap.NewNop()).Dashboard(context.Background(), "siem-logs")
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if !d.Synthetic {
		t.Error("expected synthetic flag to propagate")
	}
}
