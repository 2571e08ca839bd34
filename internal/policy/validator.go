package policy

import (
	"encoding/json"
	"fmt"

	"github.com/caldera-sec/logsift/internal/domain"
)

// collector accumulates violations across the whole clause walk. A rejected
// clause never aborts the scan: the caller gets every problem in one round.
type collector struct {
	errs []string
}

func (c *collector) addf(format string, args ...any) {
	c.errs = append(c.errs, fmt.Sprintf(format, args...))
}

func (c *collector) add(errs ...string) {
	c.errs = append(c.errs, errs...)
}

// Validate checks a raw candidate query document against the flattened
// schema and the per-invocation policy. It never panics or errors on
// malformed input; malformed structure is itself reported as a violation.
func Validate(raw json.RawMessage, s domain.Schema, cfg Config) domain.ValidationResult {
	c := &collector{}

	q, structural := domain.ParseCandidate(raw)
	c.add(structural...)

	w := &walker{schema: s, cfg: cfg, errs: c}
	w.walk(q.Query, true)

	if !w.sawBindingTimeRange {
		c.addf("Missing time range on %s", cfg.timestampField())
	}
	if w.lookbackViolated {
		c.add("Lookback exceeds maximum")
	}

	if q.Size != nil && (*q.Size <= 0 || *q.Size > SizeCeiling) {
		c.add("Invalid size")
	}

	validateSort(q, s, c)

	return domain.ValidationResult{OK: len(c.errs) == 0, Errors: c.errs}
}

// walker performs the structural recursion over the clause tree, carrying
// the temporal findings alongside the violation collector. binding tracks
// whether the current position actually constrains the result set: only
// must/filter chains from the top level do. A timestamp range under must_not
// or should (or an unrecognized operator) does not bound the query, so it
// must never satisfy the mandatory time window.
type walker struct {
	schema domain.Schema
	cfg    Config
	errs   *collector

	sawBindingTimeRange bool
	lookbackViolated    bool
}

func (w *walker) walk(c domain.Clause, binding bool) {
	switch clause := c.(type) {
	case nil:
		return
	case domain.Bool:
		for _, child := range clause.Must {
			w.walk(child, binding)
		}
		for _, child := range clause.Filter {
			w.walk(child, binding)
		}
		for _, child := range clause.Should {
			w.walk(child, false)
		}
		for _, child := range clause.MustNot {
			w.walk(child, false)
		}
	case domain.Term:
		w.checkLeaf("term", clause.Field)
	case domain.Match:
		w.checkLeaf("match", clause.Field)
	case domain.Wildcard:
		w.checkWildcard(clause.Field)
	case domain.Range:
		w.checkRange(clause, binding)
	case domain.Opaque:
		for _, child := range clause.Children {
			w.walk(child, false)
		}
	}
}

// checkLeaf validates field existence and the operator/type pairing for
// term and match leaves.
func (w *walker) checkLeaf(op, field string) {
	if !w.schema.Has(field) {
		w.errs.addf("Unknown field: %s", field)
		return
	}
	t := w.schema.Type(field)
	if t == domain.TypeNested {
		w.errs.addf("Nested field requires nested query context: %s", field)
		return
	}
	if !opAllowed(t, op) {
		w.errs.addf("Operator %s not allowed for type %s on field %s", op, t, field)
	}
}

// checkWildcard enforces the wildcard rules: keyword/text only, and never
// against an analyzer-tokenized field regardless of declared type.
func (w *walker) checkWildcard(field string) {
	if !w.schema.Has(field) {
		w.errs.addf("Unknown field: %s", field)
		return
	}
	if w.analyzed(field) {
		w.errs.addf("Wildcard not allowed on analyzed field: %s", field)
		return
	}
	t := w.schema.Type(field)
	if t == domain.TypeNested {
		w.errs.addf("Nested field requires nested query context: %s", field)
		return
	}
	if t != domain.TypeKeyword && t != domain.TypeText {
		w.errs.addf("Wildcard only permitted on keyword/text: %s", field)
	}
}

func (w *walker) checkRange(r domain.Range, binding bool) {
	field := r.Field
	if !w.schema.Has(field) {
		w.errs.addf("Unknown field: %s", field)
		return
	}
	t := w.schema.Type(field)
	if t == domain.TypeNested {
		w.errs.addf("Nested field requires nested query context: %s", field)
		return
	}
	if t != domain.TypeDate && !t.Numeric() && t != domain.TypeIP {
		w.errs.addf("Range only on date/numeric: %s", field)
		return
	}

	ts := w.cfg.timestampField()
	if t == domain.TypeDate && field != ts {
		// A decoy date field must not satisfy the time-window requirement.
		w.errs.addf("Date range only allowed on %s", ts)
		return
	}

	if field == ts {
		// Every timestamp range, binding or not, must carry a resolvable,
		// in-bounds lower bound. Only a binding one satisfies the mandatory
		// time window.
		if !withinLookback(r.Bounds, w.cfg.MaxLookbackDays) {
			w.lookbackViolated = true
		}
		if binding {
			w.sawBindingTimeRange = true
		}
	}
}

func (w *walker) analyzed(field string) bool {
	if w.cfg.AnalyzerMap[field] != "" {
		return true
	}
	return w.schema.Analyzed(field)
}

// validateSort enforces the sort policy: schema membership, sortable types,
// and the deep-sort guard on non-numeric high-cardinality fields.
func validateSort(q domain.CandidateQuery, s domain.Schema, c *collector) {
	requested := 0
	if q.Size != nil {
		requested = *q.Size
	}

	for _, spec := range q.Sort {
		if !s.Has(spec.Field) {
			c.addf("Unknown sort field: %s", spec.Field)
			continue
		}
		t := s.Type(spec.Field)
		switch t {
		case domain.TypeDate, domain.TypeKeyword, domain.TypeText:
		default:
			c.addf("Sort not allowed on field type %s: %s", t, spec.Field)
			continue
		}
		if t != domain.TypeDate && requested > DeepSortThreshold && !q.HasAggs() {
			c.addf("Deep sort on %s requires an aggregation or size <= %d", spec.Field, DeepSortThreshold)
		}
	}
}
