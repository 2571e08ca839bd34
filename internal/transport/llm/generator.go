// Package llm adapts an OpenAI-compatible chat-completions API into the
// query generator consumed by the chat orchestration. The generator is
// untrusted by design: whatever it returns is treated as a candidate query
// and goes through policy validation like any other input.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/caldera-sec/logsift/internal/domain"
)

// Config holds the generator provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Logger      *zap.Logger
}

// Generator produces candidate queries from natural-language questions.
type Generator struct {
	client *openai.Client
	model  string
	temp   float32
	logger *zap.Logger
}

// NewGenerator creates an OpenAI-compatible query generator.
func NewGenerator(cfg *Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		temp:   cfg.Temperature,
		logger: logger,
	}
}

const systemPromptTemplate = `You are a Lead SOC Analyst translating questions about security event logs into search queries.

### Schema
The available fields and their types:
%s

### Context
%s

### Response format
Respond with ONLY a JSON object of this shape:
{
  "query": <an Elasticsearch DSL object with keys restricted to query/size/aggs/sort>,
  "analysis": "<2-3 sentence security analysis of what this query looks for>",
  "story": "<attack-chain narrative as steps, or null>",
  "remediation": "<one specific actionable recommendation>",
  "severity": "low" | "medium" | "high" | "critical"
}

### Rules
- Use only fields from the schema.
- Always include a range clause on @timestamp; default to "now-24h" when the question gives no window.
- For failed logins use event.action: "logon-failure". For RDP use destination.port: 3389.`

// Generate asks the model for a candidate query. The result is unvalidated.
func (g *Generator) Generate(ctx context.Context, question string, s domain.Schema, knowledge string) (domain.GeneratedQuery, error) {
	start := time.Now()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temp,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: fmt.Sprintf(systemPromptTemplate, renderSchema(s), knowledge),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: question,
			},
		},
	})
	if err != nil {
		return domain.GeneratedQuery{}, fmt.Errorf("%w: %v", domain.ErrGeneratorFailed, err)
	}
	if len(resp.Choices) == 0 {
		return domain.GeneratedQuery{}, fmt.Errorf("%w: empty completion", domain.ErrGeneratorFailed)
	}

	g.logger.Debug("query generated",
		zap.String("model", g.model),
		zap.Duration("latency", time.Since(start)),
	)

	return Parse(resp.Choices[0].Message.Content)
}

// Parse extracts a GeneratedQuery from raw model output, tolerating markdown
// fences and a bare DSL object without the wrapper fields.
func Parse(content string) (domain.GeneratedQuery, error) {
	cleaned := stripFences(content)

	var wrapper struct {
		Query       json.RawMessage `json:"query"`
		Analysis    string          `json:"analysis"`
		Story       string          `json:"story"`
		Remediation string          `json:"remediation"`
		Severity    string          `json:"severity"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapper); err != nil {
		return domain.GeneratedQuery{}, fmt.Errorf("%w: unparseable completion", domain.ErrGeneratorFailed)
	}

	if len(wrapper.Query) == 0 || string(wrapper.Query) == "null" {
		// The model sometimes returns the DSL object directly.
		return domain.GeneratedQuery{Query: json.RawMessage(cleaned)}, nil
	}

	// The wrapper's query value may itself be a full document or just the
	// query clause; normalize to a full document.
	queryDoc := wrapper.Query
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(wrapper.Query, &probe); err == nil {
		if _, hasQuery := probe["query"]; !hasQuery {
			wrapped, err := json.Marshal(map[string]json.RawMessage{"query": wrapper.Query})
			if err == nil {
				queryDoc = wrapped
			}
		}
	}

	return domain.GeneratedQuery{
		Query:       queryDoc,
		Analysis:    wrapper.Analysis,
		Story:       wrapper.Story,
		Remediation: wrapper.Remediation,
		Severity:    wrapper.Severity,
	}, nil
}

func stripFences(content string) string {
	s := strings.TrimSpace(content)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func renderSchema(s domain.Schema) string {
	fields := s.Fields()
	sort.Strings(fields)
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s: %s\n", f, s.Type(f))
	}
	if b.Len() == 0 {
		return "- (no schema loaded)"
	}
	return b.String()
}
