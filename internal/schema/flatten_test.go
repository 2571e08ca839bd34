package schema

import (
	"reflect"
	"testing"

	"github.com/caldera-sec/logsift/internal/domain"
)

func TestFlatten_NestedProperties(t *testing.T) {
	properties := map[string]any{
		"@timestamp": map[string]any{"type": "date"},
		"event": map[string]any{
			"properties": map[string]any{
				"action": map[string]any{"type": "keyword"},
				"outcome": map[string]any{
					"type": "keyword",
				},
			},
		},
		"source": map[string]any{
			"properties": map[string]any{
				"ip": map[string]any{"type": "ip"},
				"geo": map[string]any{
					"properties": map[string]any{
						"country": map[string]any{"type": "keyword"},
					},
				},
			},
		},
		"message": map[string]any{"type": "text", "analyzer": "standard"},
	}

	types, analyzers := Flatten(properties)

	wantTypes := map[string]domain.FieldType{
		"@timestamp":         domain.TypeDate,
		"event.action":       domain.TypeKeyword,
		"event.outcome":      domain.TypeKeyword,
		"source.ip":          domain.TypeIP,
		"source.geo.country": domain.TypeKeyword,
		"message":            domain.TypeText,
	}
	if !reflect.DeepEqual(types, wantTypes) {
		t.Fatalf("types mismatch:\n got %v\nwant %v", types, wantTypes)
	}

	if analyzers["message"] != "standard" {
		t.Fatalf("analyzer not recorded: %v", analyzers)
	}
	if len(analyzers) != 1 {
		t.Fatalf("unexpected analyzer entries: %v", analyzers)
	}
}

func TestFlatten_MissingTypeDefaultsToKeyword(t *testing.T) {
	types, _ := Flatten(map[string]any{
		"tag": map[string]any{},
	})
	if types["tag"] != domain.TypeKeyword {
		t.Fatalf("expected keyword default, got %s", types["tag"])
	}
}

func TestFlatten_TypedBranchKeepsDeclaredType(t *testing.T) {
	types, _ := Flatten(map[string]any{
		"dns": map[string]any{
			"type": "nested",
			"properties": map[string]any{
				"answer": map[string]any{"type": "keyword"},
			},
		},
	})

	if types["dns"] != domain.TypeNested {
		t.Fatalf("branch type lost: %s", types["dns"])
	}
	if types["dns.answer"] != domain.TypeKeyword {
		t.Fatalf("child under typed branch lost: %s", types["dns.answer"])
	}
}

func TestFlatten_Idempotent(t *testing.T) {
	properties := map[string]any{
		"a": map[string]any{"type": "keyword"},
		"b": map[string]any{
			"properties": map[string]any{
				"c": map[string]any{"type": "long"},
			},
		},
	}

	first, _ := Flatten(properties)
	second, _ := Flatten(properties)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("flatten not deterministic:\n%v\n%v", first, second)
	}
}

func TestFlatten_EmptyInput(t *testing.T) {
	types, analyzers := Flatten(nil)
	if len(types) != 0 || len(analyzers) != 0 {
		t.Fatalf("empty tree must yield empty tables: %v %v", types, analyzers)
	}
}

func TestFlatten_IgnoresNonObjectNodes(t *testing.T) {
	types, _ := Flatten(map[string]any{
		"good": map[string]any{"type": "keyword"},
		"bad":  "not-an-object",
	})
	if _, ok := types["bad"]; ok {
		t.Fatal("malformed node should be skipped")
	}
	if _, ok := types["good"]; !ok {
		t.Fatal("valid sibling lost")
	}
}

func TestFromMapping(t *testing.T) {
	mapping := map[string]any{
		"siem-logs-000001": map[string]any{
			"mappings": map[string]any{
				"properties": map[string]any{
					"@timestamp": map[string]any{"type": "date"},
				},
			},
		},
		"siem-logs-000002": map[string]any{
			"mappings": map[string]any{
				"properties": map[string]any{
					"message": map[string]any{"type": "text", "analyzer": "standard"},
				},
			},
		},
	}

	s := FromMapping("siem-logs-*", mapping)

	if s.Index != "siem-logs-*" {
		t.Fatalf("unexpected index: %s", s.Index)
	}
	if s.Type("@timestamp") != domain.TypeDate || s.Type("message") != domain.TypeText {
		t.Fatalf("fields from both backing indexes expected: %v", s.Types)
	}
	if !s.Analyzed("message") {
		t.Fatal("analyzer lost in merge")
	}
}

func TestFromMapping_UnknownShape(t *testing.T) {
	s := FromMapping("x", map[string]any{"x": "garbage"})
	if len(s.Types) != 0 {
		t.Fatalf("unknown shape must yield empty schema, got %v", s.Types)
	}
}
