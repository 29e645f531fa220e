// Package recur wraps the recurrence-rule evaluator (rrule-go) behind an
// immutable handle, and provides the Zone Bridge used to talk to it.
//
// The evaluator is zone-naive: every instant passed to or returned from a
// Rule is a UTC-tagged wall-clock value produced by ToEvaluator.
package recur

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Rule is an immutable handle on a recurrence rule.
type Rule struct {
	rr *rrule.RRule
}

// New builds a rule from evaluator options. It fails on out-of-range BYxxx
// filters or a negative interval.
func New(opt rrule.ROption) (*Rule, error) {
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, err
	}
	return &Rule{rr: rr}, nil
}

// ParseBody parses the value of an RRULE line (without the "RRULE:" prefix).
// Keys and values are case-insensitive; a floating UNTIL is read as a
// UTC-tagged wall-clock value.
func ParseBody(body string) (rrule.ROption, error) {
	opt, err := rrule.StrToROptionInLocation(strings.ToUpper(strings.TrimSpace(body)), time.UTC)
	if err != nil {
		return rrule.ROption{}, err
	}
	return *opt, nil
}

// Anchor returns the rule's DTSTART.
func (r *Rule) Anchor() time.Time {
	return r.rr.GetDTStart()
}

// Count returns the COUNT bound, or 0 if the rule has none.
func (r *Rule) Count() int {
	return r.rr.OrigOptions.Count
}

// Until returns the explicit UNTIL bound, if any.
func (r *Rule) Until() (time.Time, bool) {
	u := r.rr.OrigOptions.Until
	return u, !u.IsZero()
}

// Frequency returns the rule's FREQ.
func (r *Rule) Frequency() rrule.Frequency {
	return r.rr.OrigOptions.Freq
}

// After returns the first occurrence after t (at or after t when inc is
// true). ok is false if the rule has no such occurrence.
func (r *Rule) After(t time.Time, inc bool) (next time.Time, ok bool) {
	next = r.rr.After(t, inc)
	return next, !next.IsZero()
}

// Between returns the ordered occurrences between from and until.
func (r *Rule) Between(from, until time.Time, inc bool) []time.Time {
	return r.rr.Between(from, until, inc)
}

// Iterator returns a fresh iterator over all occurrences, starting at the
// anchor.
func (r *Rule) Iterator() rrule.Next {
	return r.rr.Iterator()
}

// WithAnchor returns a copy of r anchored at t. r is left untouched.
func (r *Rule) WithAnchor(t time.Time) *Rule {
	opt := r.rr.OrigOptions
	opt.Dtstart = t
	return r.rebuild(opt)
}

// WithUntil returns a copy of r bounded by t. r is left untouched.
func (r *Rule) WithUntil(t time.Time) *Rule {
	opt := r.rr.OrigOptions
	opt.Until = t
	return r.rebuild(opt)
}

func (r *Rule) rebuild(opt rrule.ROption) *Rule {
	rr, err := rrule.NewRRule(opt)
	if err != nil {
		// bounds already passed validation when r was built
		return r
	}
	return &Rule{rr: rr}
}

// String renders the rule body (FREQ, bounds and filters) without the
// anchor line. UNTIL is always rendered with a UTC "Z" suffix.
func (r *Rule) String() string {
	return r.rr.OrigOptions.RRuleString()
}
