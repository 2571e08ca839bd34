// Package policy decides whether an untrusted candidate query is safe to
// execute: well-formed against the declared schema, bounded in time range
// and size, and free of operator/type combinations the backend cannot serve
// predictably. It sits between the query generator (or a UI builder) and the
// execution gateway and is deliberately fail-closed.
package policy

import "github.com/caldera-sec/logsift/internal/domain"

// SizeCeiling is the hard upper bound on a requested result size,
// independent of any per-role clamp applied later by the gateway.
const SizeCeiling = 1000

// DeepSortThreshold is the requested-size limit above which sorting on a
// non-numeric high-cardinality field requires an accompanying aggregation.
const DeepSortThreshold = 100

// DefaultTimestampField is the designated event-time field.
const DefaultTimestampField = "@timestamp"

// Config is the per-invocation policy. Built fresh from role and environment
// for every validation or execution call, never mutated afterwards.
type Config struct {
	// MaxResultSize is the role's result-size clamp, applied by the gateway.
	MaxResultSize int
	// MaxLookbackDays bounds how far back a query's time range may reach.
	MaxLookbackDays float64
	// AllowedIndexes is the role's index allow-list.
	AllowedIndexes []string
	// AnalyzerMap marks analyzer-tokenized fields in addition to whatever
	// the flattened schema already declares.
	AnalyzerMap map[string]string
	// TimestampField overrides the designated time field. Defaults to
	// DefaultTimestampField.
	TimestampField string
}

func (c Config) timestampField() string {
	if c.TimestampField != "" {
		return c.TimestampField
	}
	return DefaultTimestampField
}

// IndexAllowed reports whether the index is in the allow-list.
func (c Config) IndexAllowed(index string) bool {
	for _, allowed := range c.AllowedIndexes {
		if allowed == index {
			return true
		}
	}
	return false
}

// allowedOps lists the operators each field type admits. A type absent from
// the table admits nothing. match is absent for keyword on purpose: match
// implies analysis semantics a keyword field does not have.
var allowedOps = map[domain.FieldType]map[string]struct{}{
	domain.TypeKeyword: {"term": {}, "wildcard": {}},
	domain.TypeText:    {"match": {}, "wildcard": {}},
	domain.TypeDate:    {"range": {}, "term": {}},
	domain.TypeInteger: {"range": {}, "term": {}},
	domain.TypeLong:    {"range": {}, "term": {}},
	domain.TypeFloat:   {"range": {}, "term": {}},
	domain.TypeDouble:  {"range": {}, "term": {}},
	domain.TypeIP:      {"range": {}, "term": {}},
}

func opAllowed(t domain.FieldType, op string) bool {
	ops, ok := allowedOps[t]
	if !ok {
		return false
	}
	_, ok = ops[op]
	return ok
}
