package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

var allowedTopLevel = map[string]struct{}{
	"query": {},
	"size":  {},
	"aggs":  {},
	"sort":  {},
}

// ParseCandidate decodes an untrusted query document into a CandidateQuery.
// Structural problems never abort the decode: everything recognizable is
// still parsed and every problem found is returned as a violation string, so
// the policy validator can report them alongside its own findings.
func ParseCandidate(raw json.RawMessage) (CandidateQuery, []string) {
	var violations []string

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		return CandidateQuery{Raw: raw}, []string{"DSL must be an object"}
	}

	// Deterministic violation order regardless of map iteration.
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := allowedTopLevel[k]; !ok {
			violations = append(violations, fmt.Sprintf("Unsupported top-level key: %s", k))
		}
	}

	q := CandidateQuery{Raw: raw}

	if rawQuery, ok := doc["query"]; ok {
		var node any
		if err := json.Unmarshal(rawQuery, &node); err == nil {
			q.Query = parseNode(node)
		} else {
			violations = append(violations, "query must be an object")
		}
	}

	if rawSize, ok := doc["size"]; ok {
		var f float64
		if err := json.Unmarshal(rawSize, &f); err != nil || f != math.Trunc(f) {
			violations = append(violations, "Invalid size")
		} else {
			n := int(f)
			q.Size = &n
		}
	}

	if rawAggs, ok := doc["aggs"]; ok {
		q.Aggs = rawAggs
	}

	if rawSort, ok := doc["sort"]; ok {
		specs, sortViolations := parseSort(rawSort)
		q.Sort = specs
		violations = append(violations, sortViolations...)
	}

	return q, violations
}

// parseNode converts one decoded query node into a clause. A nil return means
// the node held nothing recognizable.
func parseNode(node any) Clause {
	obj, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	clauses := parseClauseMap(obj)
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return Bool{Must: clauses}
	}
}

func parseClauseMap(obj map[string]any) []Clause {
	ops := make([]string, 0, len(obj))
	for op := range obj {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	var clauses []Clause
	for _, op := range ops {
		if c := parseOperator(op, obj[op]); c != nil {
			clauses = append(clauses, c)
		}
	}
	return clauses
}

func parseOperator(op string, val any) Clause {
	switch op {
	case "bool":
		return parseBool(val)
	case "term", "match", "wildcard":
		return parseLeaves(op, val)
	case "range":
		return parseRanges(val)
	default:
		// Outside the grammar. Still descend so nested recognized clauses
		// are not hidden from the validator.
		children := parseChildren(val)
		return Opaque{Op: op, Children: children}
	}
}

func parseBool(val any) Clause {
	obj, ok := val.(map[string]any)
	if !ok {
		return Opaque{Op: "bool"}
	}
	b := Bool{
		Must:    parseOccurrence(obj["must"]),
		Should:  parseOccurrence(obj["should"]),
		MustNot: parseOccurrence(obj["must_not"]),
		Filter:  parseOccurrence(obj["filter"]),
	}
	return b
}

// parseOccurrence accepts the single-clause and clause-list wire forms.
func parseOccurrence(val any) []Clause {
	switch v := val.(type) {
	case nil:
		return nil
	case []any:
		var out []Clause
		for _, item := range v {
			if c := parseNode(item); c != nil {
				out = append(out, c)
			}
		}
		return out
	case map[string]any:
		if c := parseNode(v); c != nil {
			return []Clause{c}
		}
		return nil
	default:
		return nil
	}
}

// parseLeaves expands {"op": {"f1": v1, "f2": v2}} into one leaf per field.
func parseLeaves(op string, val any) Clause {
	obj, ok := val.(map[string]any)
	if !ok {
		return Opaque{Op: op}
	}
	fields := make([]string, 0, len(obj))
	for f := range obj {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var leaves []Clause
	for _, f := range fields {
		switch op {
		case "term":
			leaves = append(leaves, Term{Field: f, Value: obj[f]})
		case "match":
			leaves = append(leaves, Match{Field: f, Value: obj[f]})
		case "wildcard":
			leaves = append(leaves, Wildcard{Field: f, Pattern: obj[f]})
		}
	}
	switch len(leaves) {
	case 0:
		return nil
	case 1:
		return leaves[0]
	default:
		return Bool{Must: leaves}
	}
}

func parseRanges(val any) Clause {
	obj, ok := val.(map[string]any)
	if !ok {
		return Opaque{Op: "range"}
	}
	fields := make([]string, 0, len(obj))
	for f := range obj {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var leaves []Clause
	for _, f := range fields {
		bounds, _ := obj[f].(map[string]any)
		leaves = append(leaves, Range{Field: f, Bounds: bounds})
	}
	switch len(leaves) {
	case 0:
		return nil
	case 1:
		return leaves[0]
	default:
		return Bool{Must: leaves}
	}
}

func parseChildren(val any) []Clause {
	switch v := val.(type) {
	case map[string]any:
		return parseClauseMap(v)
	case []any:
		var out []Clause
		for _, item := range v {
			out = append(out, parseChildren(item)...)
		}
		return out
	default:
		return nil
	}
}

func parseSort(raw json.RawMessage) ([]SortSpec, []string) {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, []string{"Invalid sort specification"}
	}

	items, ok := node.([]any)
	if !ok {
		items = []any{node}
	}

	var specs []SortSpec
	var violations []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			specs = append(specs, SortSpec{Field: v})
		case map[string]any:
			fields := make([]string, 0, len(v))
			for f := range v {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			for _, f := range fields {
				spec := SortSpec{Field: f}
				switch cfg := v[f].(type) {
				case string:
					spec.Order = cfg
				case map[string]any:
					if order, ok := cfg["order"].(string); ok {
						spec.Order = order
					}
				}
				specs = append(specs, spec)
			}
		default:
			violations = append(violations, "Invalid sort specification")
		}
	}
	return specs, violations
}
