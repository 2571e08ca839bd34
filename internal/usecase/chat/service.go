// Package chat orchestrates the question-to-result pipeline: rate limit,
// schema resolution, query generation, policy validation, and gated
// execution, with every executed query recorded in the audit ledger.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/domain"
	"github.com/caldera-sec/logsift/internal/metrics"
	"github.com/caldera-sec/logsift/internal/policy"
)

// Answer is the pipeline outcome for a single question or submitted query.
// A rejected query carries Validation.Errors and no Result.
type Answer struct {
	Query        json.RawMessage           `json:"query"`
	Analysis     string                    `json:"analysis,omitempty"`
	Story        string                    `json:"story,omitempty"`
	Remediation  string                    `json:"remediation,omitempty"`
	Severity     string                    `json:"severity,omitempty"`
	Validation   domain.ValidationResult   `json:"validation"`
	Result       *domain.ExecutionResult   `json:"result,omitempty"`
	Aggregations *domain.AggregationResult `json:"aggregations,omitempty"`
}

// Service runs the chat pipeline.
type Service struct {
	gen      Generator
	know     Knowledge
	exec     Executor
	schemas  SchemaProvider
	recorder Recorder
	limiter  RateLimiter
	policies map[string]policy.Config
	index    string
	logger   *zap.Logger
}

// New creates a chat service. policies maps role names to their query
// policy; defaultIndex is used when a request names no index.
func New(
	gen Generator, know Knowledge, exec Executor, schemas SchemaProvider,
	recorder Recorder, limiter RateLimiter,
	policies map[string]policy.Config, defaultIndex string, logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gen:      gen,
		know:     know,
		exec:     exec,
		schemas:  schemas,
		recorder: recorder,
		limiter:  limiter,
		policies: policies,
		index:    defaultIndex,
		logger:   logger,
	}
}

// Ask answers a natural-language question: generate a candidate query,
// validate it against the caller's policy, and execute it when accepted.
func (s *Service) Ask(ctx context.Context, user, role, index, question string) (Answer, error) {
	if !s.limiter.Allow(user) {
		return Answer{}, domain.ErrRateLimited
	}

	cfg, err := s.policyFor(role)
	if err != nil {
		return Answer{}, err
	}
	index = s.resolveIndex(index)
	if !cfg.IndexAllowed(index) {
		return Answer{}, fmt.Errorf("%w: %s", domain.ErrIndexNotAllowed, index)
	}

	schema, err := s.schemas.Get(ctx, index)
	if err != nil {
		return Answer{}, fmt.Errorf("resolve schema: %w", err)
	}

	gen, err := s.gen.Generate(ctx, question, schema, s.know.Lookup(ctx, question, 2))
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{
		Query:       gen.Query,
		Analysis:    gen.Analysis,
		Story:       gen.Story,
		Remediation: gen.Remediation,
		Severity:    gen.Severity,
	}
	return s.validateAndRun(ctx, user, index, schema, cfg, answer)
}

// Run validates and executes a caller-supplied query document. Used by the
// query builder and saved-search replay, which skip generation.
func (s *Service) Run(ctx context.Context, user, role, index string, raw json.RawMessage) (Answer, error) {
	if !s.limiter.Allow(user) {
		return Answer{}, domain.ErrRateLimited
	}

	cfg, err := s.policyFor(role)
	if err != nil {
		return Answer{}, err
	}
	index = s.resolveIndex(index)
	if !cfg.IndexAllowed(index) {
		return Answer{}, fmt.Errorf("%w: %s", domain.ErrIndexNotAllowed, index)
	}

	schema, err := s.schemas.Get(ctx, index)
	if err != nil {
		return Answer{}, fmt.Errorf("resolve schema: %w", err)
	}

	return s.validateAndRun(ctx, user, index, schema, cfg, Answer{Query: raw})
}

// Preflight validates a query document without executing it.
func (s *Service) Preflight(ctx context.Context, role, index string, raw json.RawMessage) (domain.ValidationResult, error) {
	cfg, err := s.policyFor(role)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	index = s.resolveIndex(index)
	if !cfg.IndexAllowed(index) {
		return domain.ValidationResult{}, fmt.Errorf("%w: %s", domain.ErrIndexNotAllowed, index)
	}

	schema, err := s.schemas.Get(ctx, index)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("resolve schema: %w", err)
	}

	verdict := policy.Validate(raw, schema, cfg)
	observeValidation(verdict)
	return verdict, nil
}

func (s *Service) validateAndRun(
	ctx context.Context, user, index string,
	schema domain.Schema, cfg policy.Config, answer Answer,
) (Answer, error) {
	verdict := policy.Validate(answer.Query, schema, cfg)
	observeValidation(verdict)
	answer.Validation = verdict
	if !verdict.OK {
		s.logger.Info("query rejected",
			zap.String("user", user),
			zap.String("index", index),
			zap.Strings("violations", verdict.Errors),
		)
		return answer, nil
	}

	start := time.Now()
	result := s.exec.Execute(ctx, answer.Query, index, cfg.MaxResultSize)
	answer.Result = &result

	s.record(ctx, user, index, result.TotalHits, time.Since(start).Milliseconds(), answer.Query)

	if cq, _ := domain.ParseCandidate(answer.Query); cq.HasAggs() {
		aggs, err := s.exec.ExecuteAggregation(ctx, answer.Query, index)
		if err != nil {
			s.logger.Warn("aggregation failed", zap.String("index", index), zap.Error(err))
		} else {
			answer.Aggregations = &aggs
		}
	}

	return answer, nil
}

// record appends to the audit ledger. Ledger failures are logged and
// swallowed so an audit outage never blocks query results.
func (s *Service) record(ctx context.Context, user, index string, hits int, durationMS int64, query json.RawMessage) {
	if err := s.recorder.Record(ctx, user, index, hits, durationMS, string(query)); err != nil {
		s.logger.Warn("audit record failed", zap.String("user", user), zap.Error(err))
	}
}

func (s *Service) policyFor(role string) (policy.Config, error) {
	cfg, ok := s.policies[role]
	if !ok {
		return policy.Config{}, fmt.Errorf("%w: unknown role %q", domain.ErrUnauthorized, role)
	}
	return cfg, nil
}

func (s *Service) resolveIndex(index string) string {
	if index == "" {
		return s.index
	}
	return index
}

func observeValidation(v domain.ValidationResult) {
	verdict := "accepted"
	if !v.OK {
		verdict = "rejected"
		metrics.ViolationsTotal.Add(float64(len(v.Errors)))
	}
	metrics.ValidationsTotal.WithLabelValues(verdict).Inc()
}
