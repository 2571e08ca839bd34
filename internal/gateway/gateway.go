// Package gateway is the policy-bounded execution layer between validated
// candidate queries and the search backend. It enforces the static index
// allow-list, clamps result sizes, normalizes heterogeneous backend
// responses into one result shape, and substitutes synthetic data in
// demonstration deployments so the rest of the stack keeps functioning
// without a live cluster.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/cache"
	"github.com/caldera-sec/logsift/internal/domain"
	"github.com/caldera-sec/logsift/internal/elastic"
	"github.com/caldera-sec/logsift/internal/metrics"
)

// Gateway dispatches queries to the backend under a static index allow-list.
// The allow-list check here is independent of the policy validator's checks:
// a validator bug must never be the only barrier to cross-index access.
type Gateway struct {
	backend  Backend
	allowed  map[string]struct{}
	cache    cache.Cache
	aggTTL   time.Duration
	demoMode bool
	logger   *zap.Logger
}

// Config holds gateway construction settings.
type Config struct {
	// AllowedIndexes is the full static allow-list (the union over roles).
	AllowedIndexes []string
	// AggCacheTTL bounds how long aggregation results are reused.
	AggCacheTTL time.Duration
	// DemoMode substitutes synthetic results when the backend fails.
	DemoMode bool
}

// New creates a gateway.
func New(backend Backend, c cache.Cache, cfg Config, logger *zap.Logger) *Gateway {
	allowed := make(map[string]struct{}, len(cfg.AllowedIndexes))
	for _, idx := range cfg.AllowedIndexes {
		if idx != "" {
			allowed[idx] = struct{}{}
		}
	}
	ttl := cfg.AggCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		backend:  backend,
		allowed:  allowed,
		cache:    c,
		aggTTL:   ttl,
		demoMode: cfg.DemoMode,
		logger:   logger,
	}
}

// IndexAllowed reports allow-list membership for an index pattern.
func (g *Gateway) IndexAllowed(index string) bool {
	_, ok := g.allowed[index]
	return ok
}

// Execute dispatches one query against an index. sizeLimit is authoritative:
// a query-supplied size is clamped down to it, never up, and an absent size
// becomes sizeLimit.
func (g *Gateway) Execute(ctx context.Context, raw json.RawMessage, index string, sizeLimit int) domain.ExecutionResult {
	if !g.IndexAllowed(index) {
		metrics.ExecutionsTotal.WithLabelValues("search", "denied").Inc()
		return errorResult(fmt.Sprintf("%v: %s", domain.ErrIndexNotAllowed, index))
	}

	body, err := clampSize(raw, sizeLimit)
	if err != nil {
		return errorResult(err.Error())
	}

	resp, err := g.backend.Search(ctx, index, body)
	if err != nil {
		if g.demoMode {
			g.logger.Warn("backend unavailable, serving synthetic result",
				zap.String("index", index), zap.Error(err))
			metrics.SyntheticResultsTotal.Inc()
			metrics.ExecutionsTotal.WithLabelValues("search", "synthetic").Inc()
			return syntheticResult(raw, sizeLimit)
		}
		metrics.ExecutionsTotal.WithLabelValues("search", "error").Inc()
		return errorResult(err.Error())
	}

	metrics.ExecutionsTotal.WithLabelValues("search", "success").Inc()
	return normalize(resp)
}

// ExecuteMulti dispatches an ordered batch as one multi-search call and
// returns results in request order. The batch fails atomically: a disallowed
// index or any entry failure fails the whole call.
func (g *Gateway) ExecuteMulti(ctx context.Context, raws []json.RawMessage, index string, sizeLimit int) ([]domain.ExecutionResult, error) {
	if !g.IndexAllowed(index) {
		metrics.ExecutionsTotal.WithLabelValues("msearch", "denied").Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrIndexNotAllowed, index)
	}

	bodies := make([][]byte, 0, len(raws))
	for _, raw := range raws {
		body, err := clampSize(raw, sizeLimit)
		if err != nil {
			return nil, err
		}
		bodies = append(bodies, body)
	}

	resps, err := g.backend.MultiSearch(ctx, index, bodies)
	if err != nil {
		if g.demoMode {
			g.logger.Warn("backend unavailable, serving synthetic batch",
				zap.String("index", index), zap.Error(err))
			metrics.SyntheticResultsTotal.Inc()
			metrics.ExecutionsTotal.WithLabelValues("msearch", "synthetic").Inc()
			out := make([]domain.ExecutionResult, len(raws))
			for i, raw := range raws {
				out[i] = syntheticResult(raw, sizeLimit)
			}
			return out, nil
		}
		metrics.ExecutionsTotal.WithLabelValues("msearch", "error").Inc()
		return nil, err
	}

	metrics.ExecutionsTotal.WithLabelValues("msearch", "success").Inc()
	out := make([]domain.ExecutionResult, len(resps))
	for i := range resps {
		out[i] = normalize(&resps[i])
	}
	return out, nil
}

// ExecuteAggregation runs an aggs-only query (size forced to 0) and returns
// the raw buckets. Results are reused from the TTL cache keyed by
// (index, kind, serialized query); concurrent requests may race to populate
// a key, which is fine since aggregation results are idempotent per query.
func (g *Gateway) ExecuteAggregation(ctx context.Context, raw json.RawMessage, index string) (domain.AggregationResult, error) {
	if !g.IndexAllowed(index) {
		metrics.ExecutionsTotal.WithLabelValues("aggregation", "denied").Inc()
		return domain.AggregationResult{}, fmt.Errorf("%w: %s", domain.ErrIndexNotAllowed, index)
	}

	key := fmt.Sprintf("logsift:agg:%s:%s", index, string(raw))
	if cached, err := g.cache.Get(ctx, key); err == nil {
		var res domain.AggregationResult
		if err := json.Unmarshal(cached, &res); err == nil {
			metrics.AggCacheTotal.WithLabelValues("hit").Inc()
			return res, nil
		}
	}
	metrics.AggCacheTotal.WithLabelValues("miss").Inc()

	body, err := forceZeroSize(raw)
	if err != nil {
		return domain.AggregationResult{}, err
	}

	resp, err := g.backend.Search(ctx, index, body)
	if err != nil {
		if g.demoMode {
			metrics.SyntheticResultsTotal.Inc()
			metrics.ExecutionsTotal.WithLabelValues("aggregation", "synthetic").Inc()
			return syntheticAggregation(), nil
		}
		metrics.ExecutionsTotal.WithLabelValues("aggregation", "error").Inc()
		return domain.AggregationResult{}, err
	}

	res := domain.AggregationResult{Aggregations: resp.Aggregations}
	if encoded, err := json.Marshal(res); err == nil {
		if err := g.cache.SetWithTTL(ctx, key, encoded, g.aggTTL); err != nil {
			g.logger.Warn("aggregation cache write failed", zap.Error(err))
		}
	}
	metrics.ExecutionsTotal.WithLabelValues("aggregation", "success").Inc()
	return res, nil
}

// clampSize rewrites the document's size: absent becomes sizeLimit, present
// becomes min(requested, sizeLimit).
func clampSize(raw json.RawMessage, sizeLimit int) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("query must be a JSON object: %w", err)
	}
	size := sizeLimit
	if requested, ok := doc["size"].(float64); ok && int(requested) < sizeLimit {
		size = int(requested)
	}
	if size < 0 {
		size = 0
	}
	doc["size"] = size
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return out, nil
}

func forceZeroSize(raw json.RawMessage) ([]byte, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("query must be a JSON object: %w", err)
	}
	doc["size"] = 0
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return out, nil
}

// normalize flattens a backend response into the uniform result shape.
func normalize(resp *elastic.SearchResponse) domain.ExecutionResult {
	data := make([]map[string]any, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		data = append(data, hit.Source)
	}
	return domain.ExecutionResult{
		Status:    domain.StatusSuccess,
		TotalHits: resp.Hits.Total.Value,
		Data:      data,
	}
}

func errorResult(msg string) domain.ExecutionResult {
	return domain.ExecutionResult{Status: domain.StatusError, Error: msg}
}
