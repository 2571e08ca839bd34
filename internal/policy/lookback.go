package policy

import "regexp"

// relativeLower matches a relative lower bound of the form now-<N><unit>
// with unit hours or days. Anything else — an absolute timestamp, date math
// with other units, a number — fails the lookback check. The cap can only be
// enforced against a bound we can resolve to a duration, so an unresolvable
// bound is treated as out of bounds, not as acceptable.
var relativeLower = regexp.MustCompile(`^now-(\d+)([dh])$`)

// lookbackDays resolves a range lower bound to a span in days. ok is false
// when the bound is not a relative now-<N>[dh] expression.
func lookbackDays(gte any) (days float64, ok bool) {
	s, isString := gte.(string)
	if !isString {
		return 0, false
	}
	m := relativeLower.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	var n float64
	for _, c := range m[1] {
		n = n*10 + float64(c-'0')
	}
	if m[2] == "h" {
		return n / 24, true
	}
	return n, true
}

// withinLookback reports whether the lower bound of a timestamp range stays
// within maxDays. Missing or unresolvable bounds fail closed.
func withinLookback(bounds map[string]any, maxDays float64) bool {
	if bounds == nil {
		return false
	}
	days, ok := lookbackDays(bounds["gte"])
	if !ok {
		return false
	}
	return days <= maxDays
}
