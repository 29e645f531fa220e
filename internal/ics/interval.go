package ics

import (
	"time"

	"recurset/internal/model"
	"recurset/internal/recur"
)

// Kind tells which shape a GenericInterval holds.
type Kind int

const (
	KindFixed Kind = iota
	KindRecurring
)

func (k Kind) String() string {
	if k == KindRecurring {
		return "recurring"
	}
	return "fixed"
}

// RecurringInterval is a rule whose occurrences each last Duration. Zone
// gives the wall-clock zone of the rule's anchor and occurrences; nil means
// UTC.
type RecurringInterval struct {
	Rule     *recur.Rule
	Duration model.Duration
	Zone     *time.Location
}

// Start returns the rule's anchor in the interval's zone.
func (r RecurringInterval) Start() time.Time {
	return recur.FromEvaluator(r.Rule.Anchor(), r.Zone)
}

// GenericInterval holds exactly one of a fixed interval or a recurring
// source.
type GenericInterval struct {
	kind      Kind
	fixed     model.Interval
	recurring RecurringInterval
}

// FixedInterval wraps a concrete interval.
func FixedInterval(iv model.Interval) GenericInterval {
	return GenericInterval{kind: KindFixed, fixed: iv}
}

// RecurringSource wraps a recurring interval.
func RecurringSource(r RecurringInterval) GenericInterval {
	return GenericInterval{kind: KindRecurring, recurring: r}
}

func (g GenericInterval) Kind() Kind { return g.kind }

func (g GenericInterval) Fixed() (model.Interval, bool) {
	return g.fixed, g.kind == KindFixed
}

func (g GenericInterval) Recurring() (RecurringInterval, bool) {
	return g.recurring, g.kind == KindRecurring
}

// Duration is the length of each recurring occurrence, or the elapsed span
// of a fixed interval.
func (g GenericInterval) Duration() model.Duration {
	if g.kind == KindRecurring {
		return g.recurring.Duration
	}
	return model.Clock(g.fixed.Duration())
}

// Start is the fixed start or the recurring anchor.
func (g GenericInterval) Start() time.Time {
	if g.kind == KindRecurring {
		return g.recurring.Start()
	}
	return g.fixed.Start
}
