package gateway

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Synthetic fixtures for demonstration mode. Seeded from the query bytes so
// the same question keeps showing the same data across a demo session.

var (
	syntheticActions = []string{"logon-failure", "logon-success", "file-access", "process-start", "network-connect"}
	syntheticUsers   = []string{"admin", "root", "jdoe", "svc-backup", "testuser"}
	syntheticIPs     = []string{"192.168.1.50", "10.0.0.5", "203.0.113.10", "172.16.4.21"}
	syntheticFiles   = []string{"/etc/shadow", "/etc/passwd", "/var/www/html/config.php"}
	syntheticAgents  = []string{"web-01", "db-02", "dc-01", "jump-01"}
)

// syntheticResult fabricates a plausible hit list. Always flagged Synthetic
// so downstream presentation can mark it.
func syntheticResult(raw json.RawMessage, sizeLimit int) domain.ExecutionResult {
	n := sizeLimit
	if n > 25 {
		n = 25
	}
	if n < 1 {
		n = 0
	}

	rng := rand.New(rand.NewSource(seedFrom(raw)))
	now := time.Now().UTC()

	data := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		ts := now.Add(-time.Duration(rng.Intn(24*60)) * time.Minute)
		data = append(data, map[string]any{
			"@timestamp":       ts.Format(time.RFC3339),
			"event.action":     syntheticActions[rng.Intn(len(syntheticActions))],
			"user.name":        syntheticUsers[rng.Intn(len(syntheticUsers))],
			"source.ip":        syntheticIPs[rng.Intn(len(syntheticIPs))],
			"file.path":        syntheticFiles[rng.Intn(len(syntheticFiles))],
			"agent.name":       syntheticAgents[rng.Intn(len(syntheticAgents))],
			"destination.port": 1024 + rng.Intn(64000),
			"rule.level":       1 + rng.Intn(15),
			"rule.description": "synthetic demonstration event",
		})
	}

	return domain.ExecutionResult{
		Status:    domain.StatusSuccess,
		TotalHits: n * 3,
		Data:      data,
		Synthetic: true,
	}
}

// syntheticAggregation returns the fixed aggregation shape presentation code
// expects: a 24-bucket hourly histogram and a small top-terms list.
func syntheticAggregation() domain.AggregationResult {
	now := time.Now().UTC().Truncate(time.Hour)

	histo := make([]map[string]any, 0, 24)
	for i := 23; i >= 0; i-- {
		ts := now.Add(-time.Duration(i) * time.Hour)
		histo = append(histo, map[string]any{
			"key_as_string": ts.Format(time.RFC3339),
			"key":           ts.UnixMilli(),
			"doc_count":     5 + (i*7)%40,
		})
	}

	terms := make([]map[string]any, 0, len(syntheticActions))
	for i, action := range syntheticActions {
		terms = append(terms, map[string]any{
			"key":       action,
			"doc_count": 40 - i*7,
		})
	}

	byTime, _ := json.Marshal(map[string]any{"buckets": histo})
	topTerms, _ := json.Marshal(map[string]any{"buckets": terms})

	return domain.AggregationResult{
		Aggregations: map[string]json.RawMessage{
			"by_time":   byTime,
			"top_terms": topTerms,
		},
		Synthetic: true,
	}
}

func seedFrom(raw json.RawMessage) int64 {
	h := fnv.New64a()
	_, _ = h.Write(raw)
	_, _ = fmt.Fprintf(h, "%d", time.Now().UTC().Truncate(time.Hour).Unix())
	return int64(h.Sum64())
}
