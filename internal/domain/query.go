package domain

import "encoding/json"

// Clause is one node of a candidate query's clause tree. The tree is a small
// tagged union: boolean combinators contain child clauses, leaves reference
// exactly one field each. A leaf operator applied to several fields in the
// wire form ({"term": {"a": 1, "b": 2}}) parses into one leaf per field.
type Clause interface {
	clause()
}

// Bool combines child clauses. Children from must/should/must_not/filter are
// all walked by the validator; the distinction only matters to the backend.
type Bool struct {
	Must    []Clause
	Should  []Clause
	MustNot []Clause
	Filter  []Clause
}

// Term is an exact-value leaf clause.
type Term struct {
	Field string
	Value any
}

// Match is an analyzed full-text leaf clause.
type Match struct {
	Field string
	Value any
}

// Wildcard is a pattern-match leaf clause.
type Wildcard struct {
	Field   string
	Pattern any
}

// Range is a bounded-comparison leaf clause. Bounds holds the raw
// gte/gt/lte/lt entries as decoded from the document.
type Range struct {
	Field  string
	Bounds map[string]any
}

// Opaque is an operator outside the recognized grammar. Its children are
// whatever recognized clauses were found nested underneath, so the validator
// still walks every level of the document.
type Opaque struct {
	Op       string
	Children []Clause
}

func (Bool) clause()     {}
func (Term) clause()     {}
func (Match) clause()    {}
func (Wildcard) clause() {}
func (Range) clause()    {}
func (Opaque) clause()   {}

// SortSpec is one entry of a query's sort section.
type SortSpec struct {
	Field string
	Order string
}

// CandidateQuery is an untrusted search request after decoding. Raw preserves
// the exact original document for dispatch; the typed fields exist for
// validation only and never round-trip back to the backend.
type CandidateQuery struct {
	Query Clause
	Size  *int
	Aggs  json.RawMessage
	Sort  []SortSpec
	Raw   json.RawMessage
}

// HasAggs reports whether the query carries an aggregation section.
func (q CandidateQuery) HasAggs() bool {
	return len(q.Aggs) > 0 && string(q.Aggs) != "null"
}

// ValidationResult is the outcome of policy validation. Either OK with no
// errors, or not OK with every violation found in one pass.
type ValidationResult struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}
