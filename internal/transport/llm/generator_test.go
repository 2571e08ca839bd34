package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/caldera-sec/logsift/internal/domain"
)

func TestParse_FullWrapper(t *testing.T) {
	got, err := Parse(`{
		"query": {"query": {"term": {"event.action": "logon-failure"}}, "size": 10},
		"analysis": "Looks for failed logons.",
		"story": "Initial access attempt.",
		"remediation": "Lock the account.",
		"severity": "high"
	}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(got.Query, &doc); err != nil {
		t.Fatalf("query not JSON: %v", err)
	}
	if _, ok := doc["query"]; !ok {
		t.Fatalf("full document lost: %s", got.Query)
	}
	if got.Analysis != "Looks for failed logons." || got.Severity != "high" {
		t.Fatalf("wrapper fields lost: %+v", got)
	}
}

func TestParse_BareQueryClauseWrapped(t *testing.T) {
	got, err := Parse(`{
		"query": {"term": {"event.action": "logon-failure"}},
		"analysis": "x",
		"severity": "low"
	}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(got.Query, &doc); err != nil {
		t.Fatalf("query not JSON: %v", err)
	}
	if _, ok := doc["query"]; !ok {
		t.Fatalf("bare clause not normalized to a document: %s", got.Query)
	}
}

func TestParse_MarkdownFences(t *testing.T) {
	got, err := Parse("```json\n{\"query\": {\"query\": {}}, \"severity\": \"low\"}\n```")
	if err != nil {
		t.Fatalf("fenced output rejected: %v", err)
	}
	if got.Severity != "low" {
		t.Fatalf("fenced content not parsed: %+v", got)
	}
}

func TestParse_BareDSLDocument(t *testing.T) {
	// No wrapper fields at all: the whole object is the candidate query.
	got, err := Parse(`{"size": 5, "aggs": {"by": {"terms": {"field": "a"}}}}`)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if string(got.Query) == "" {
		t.Fatal("bare document dropped")
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(got.Query, &doc); err != nil {
		t.Fatalf("query not JSON: %v", err)
	}
	if _, ok := doc["aggs"]; !ok {
		t.Fatalf("document content lost: %s", got.Query)
	}
}

func TestParse_Garbage(t *testing.T) {
	_, err := Parse("I cannot answer that question.")
	if !errors.Is(err, domain.ErrGeneratorFailed) {
		t.Fatalf("expected ErrGeneratorFailed, got %v", err)
	}
}

func TestRenderSchema(t *testing.T) {
	s := domain.Schema{Types: map[string]domain.FieldType{
		"b": domain.TypeKeyword,
		"a": domain.TypeDate,
	}}

	out := renderSchema(s)
	if out != "- a: date\n- b: keyword\n" {
		t.Fatalf("unexpected rendering: %q", out)
	}
}

func TestRenderSchema_Empty(t *testing.T) {
	out := renderSchema(domain.Schema{})
	if out != "- (no schema loaded)" {
		t.Fatalf("unexpected rendering: %q", out)
	}
}
