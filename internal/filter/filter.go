// Package filter narrows a record collection by free-text query and
// discrete field selections.
package filter

import "strings"

// All is the selection value that matches every record.
const All = "all"

// Record is implemented by every filterable record type.
type Record interface {
	// SearchFields returns the values a free-text query is matched against.
	SearchFields() []string
	// FilterValue returns the value of a discrete filter field and whether
	// the record type has such a field.
	FilterValue(key string) (string, bool)
}

// Selections maps a discrete filter key (risk, status, level...) to the
// selected value. Empty values and All match every record.
type Selections map[string]string

// Active returns the selections that actually constrain the result.
func (s Selections) Active() Selections {
	out := make(Selections, len(s))
	for k, v := range s {
		v = strings.TrimSpace(v)
		if v == "" || strings.EqualFold(v, All) {
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns an independent copy of s.
func (s Selections) Clone() Selections {
	out := make(Selections, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Apply returns the records matching query and every active selection, in
// source order. The query is matched as given; only "" matches every
// record. The result is never nil.
func Apply[T Record](records []T, query string, sel Selections) []T {
	q := strings.ToLower(query)
	active := sel.Active()

	out := make([]T, 0, len(records))
	for _, r := range records {
		if Matches(r, q, active) {
			out = append(out, r)
		}
	}
	return out
}

// Matches reports whether r satisfies the lower-cased query q and the
// given selections. A selection on a field the record does not have never
// matches.
func Matches(r Record, q string, sel Selections) bool {
	for key, want := range sel {
		if want == "" || strings.EqualFold(want, All) {
			continue
		}
		got, ok := r.FilterValue(key)
		if !ok || !strings.EqualFold(got, want) {
			return false
		}
	}

	if q == "" {
		return true
	}
	for _, f := range r.SearchFields() {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}
