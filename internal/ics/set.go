package ics

import (
	"sort"
	"time"

	"github.com/samber/mo"

	appLog "recurset/internal/log"
	"recurset/internal/model"
	"recurset/internal/recur"
)

// DefaultIterationLimit is the number of occurrences walked when looking for
// the end of a bounded rule.
const DefaultIterationLimit = 1000

// SetConfig holds the inputs of NewRecurringIntervalSet.
type SetConfig struct {
	Intervals  []GenericInterval
	Exclusions []time.Time

	// IterationLimit caps the occurrences walked per rule while looking for
	// its last occurrence. Rules that do not end within the limit are
	// reported as unbounded. Values <= 0 select DefaultIterationLimit.
	IterationLimit int
}

type entry struct {
	key      int64
	first    time.Time
	interval GenericInterval
	lastEnd  mo.Option[time.Time]
}

type exclusion struct {
	key int64
	at  time.Time
}

// RecurringIntervalSet is an immutable, ordered merge of recurring and fixed
// intervals with a set of excluded occurrence starts. It is safe for
// concurrent reads.
type RecurringIntervalSet struct {
	entries    []entry
	exclusions []exclusion
	excluded   map[int64]struct{}
	limit      int
	unbounded  bool
}

// NewRecurringIntervalSet merges the configured sources. Rules are
// re-anchored on their first occurrence and, when they end within the
// iteration limit, re-bounded on their last one. Sources with no remaining
// occurrence are dropped; exclusions are dropped when no rule remains.
func NewRecurringIntervalSet(cfg SetConfig) *RecurringIntervalSet {
	s := &RecurringIntervalSet{
		limit:    cfg.IterationLimit,
		excluded: make(map[int64]struct{}, len(cfg.Exclusions)),
	}
	if s.limit <= 0 {
		s.limit = DefaultIterationLimit
	}

	for _, ex := range cfg.Exclusions {
		k := ex.UnixMilli()
		if _, dup := s.excluded[k]; dup {
			continue
		}
		s.excluded[k] = struct{}{}
		s.exclusions = append(s.exclusions, exclusion{key: k, at: ex})
	}
	sort.Slice(s.exclusions, func(i, j int) bool {
		return s.exclusions[i].key < s.exclusions[j].key
	})

	entries := make([]entry, 0, len(cfg.Intervals))
	// any rule with an occurrence keeps the exclusions, even if a later
	// source replaces it below
	hasRules := false
	for _, src := range cfg.Intervals {
		switch src.Kind() {
		case KindRecurring:
			r, _ := src.Recurring()
			if e, ok := s.recurringEntry(r); ok {
				entries = append(entries, e)
				hasRules = true
			}
		default:
			iv, _ := src.Fixed()
			if s.isExcluded(iv.Start) {
				continue
			}
			entries = append(entries, entry{key: iv.Start.UnixMilli(), first: iv.Start, interval: src})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	for i, e := range entries {
		if i+1 < len(entries) && entries[i+1].key == e.key {
			// a later source with the same first occurrence replaces this one
			continue
		}
		s.entries = append(s.entries, e)
		if e.interval.Kind() == KindRecurring && e.lastEnd.IsAbsent() {
			s.unbounded = true
		}
	}

	if !hasRules {
		s.exclusions = nil
		s.excluded = map[int64]struct{}{}
	}
	return s
}

func (s *RecurringIntervalSet) recurringEntry(r RecurringInterval) (entry, bool) {
	if r.Rule == nil {
		return entry{}, false
	}
	zone := zoneOf(r)
	rule := r.Rule

	next := rule.Iterator()
	occ, ok := next()
	if !ok {
		return entry{}, false
	}
	if !occ.Equal(rule.Anchor()) {
		rule = rule.WithAnchor(occ)
	}

	var first time.Time
	for ; ok; occ, ok = next() {
		at := recur.FromEvaluator(occ, zone)
		if !s.isExcluded(at) {
			first = at
			break
		}
	}
	if !ok {
		appLog.Debug("recurring source fully excluded", "rule", rule.String())
		return entry{}, false
	}

	rule, lastEnd := s.lastEnd(rule, r.Duration, zone)
	r.Rule = rule
	return entry{
		key:      first.UnixMilli(),
		first:    first,
		interval: RecurringSource(r),
		lastEnd:  lastEnd,
	}, true
}

// lastEnd walks a rule from its anchor looking for its last non-excluded
// occurrence. It returns the rule, re-bounded on that occurrence when it has
// an explicit UNTIL, and the end of the last occurrence. Rules with neither
// a COUNT within the limit nor an UNTIL, and rules still producing
// occurrences after limit steps, have no last end.
func (s *RecurringIntervalSet) lastEnd(rule *recur.Rule, d model.Duration, zone *time.Location) (*recur.Rule, mo.Option[time.Time]) {
	until, hasUntil := rule.Until()
	count := rule.Count()
	if (count == 0 || count > s.limit) && !hasUntil {
		return rule, mo.None[time.Time]()
	}

	next := rule.Iterator()
	var last time.Time
	found := false
	// one extra step so that exhaustion after exactly limit occurrences
	// still counts as bounded
	for i := 0; i <= s.limit; i++ {
		occ, ok := next()
		if !ok {
			if !found {
				return rule, mo.None[time.Time]()
			}
			if hasUntil && !until.Equal(last) {
				rule = rule.WithUntil(last)
			}
			return rule, mo.Some(d.AddTo(recur.FromEvaluator(last, zone)))
		}
		if i == s.limit {
			break
		}
		if !s.isExcluded(recur.FromEvaluator(occ, zone)) {
			last = occ
			found = true
		}
	}

	appLog.Debug("rule not exhausted within iteration limit, treating as unbounded",
		"rule", rule.String(), "limit", s.limit)
	return rule, mo.None[time.Time]()
}

func zoneOf(r RecurringInterval) *time.Location {
	if r.Zone == nil {
		return time.UTC
	}
	return r.Zone
}

func (s *RecurringIntervalSet) isExcluded(t time.Time) bool {
	_, ok := s.excluded[t.UnixMilli()]
	return ok
}

// IterationLimit returns the limit the set was built with.
func (s *RecurringIntervalSet) IterationLimit() int { return s.limit }

// Empty reports whether the set has no occurrence at all.
func (s *RecurringIntervalSet) Empty() bool { return len(s.entries) == 0 }

// Unbounded reports whether some rule has no last occurrence within the
// iteration limit.
func (s *RecurringIntervalSet) Unbounded() bool { return s.unbounded }

// FirstStart returns the start of the earliest occurrence.
func (s *RecurringIntervalSet) FirstStart() mo.Option[time.Time] {
	if len(s.entries) == 0 {
		return mo.None[time.Time]()
	}
	return mo.Some(s.entries[0].first)
}

// LastEnd returns the latest occurrence end. It is absent for an empty or
// unbounded set.
func (s *RecurringIntervalSet) LastEnd() mo.Option[time.Time] {
	if len(s.entries) == 0 || s.unbounded {
		return mo.None[time.Time]()
	}
	var last time.Time
	for i, e := range s.entries {
		end := e.end()
		if i == 0 || end.After(last) {
			last = end
		}
	}
	return mo.Some(last)
}

func (e entry) end() time.Time {
	if iv, ok := e.interval.Fixed(); ok {
		return iv.End
	}
	return e.lastEnd.OrEmpty()
}

// MinimumDuration returns the shortest source duration. Calendar fields
// are ordered as 365-day years, 30-day months and 24-hour days.
func (s *RecurringIntervalSet) MinimumDuration() mo.Option[model.Duration] {
	return s.durationBy(func(a, b time.Duration) bool { return a < b })
}

// MaximumDuration returns the longest source duration.
func (s *RecurringIntervalSet) MaximumDuration() mo.Option[model.Duration] {
	return s.durationBy(func(a, b time.Duration) bool { return a > b })
}

func (s *RecurringIntervalSet) durationBy(better func(a, b time.Duration) bool) mo.Option[model.Duration] {
	if len(s.entries) == 0 {
		return mo.None[model.Duration]()
	}
	best := s.entries[0].interval.Duration()
	for _, e := range s.entries[1:] {
		if d := e.interval.Duration(); better(d.Approx(), best.Approx()) {
			best = d
		}
	}
	return mo.Some(best)
}

// Between returns every occurrence whose start lies in [from, until],
// ordered by start.
func (s *RecurringIntervalSet) Between(from, until time.Time) []model.Interval {
	out, _ := s.between(from, until, -1)
	return out
}

// BetweenLimit is Between cut to the n earliest occurrences. No rule is
// expanded past n matches. The flag reports whether occurrences were cut.
func (s *RecurringIntervalSet) BetweenLimit(from, until time.Time, n int) ([]model.Interval, bool) {
	if n < 0 {
		n = 0
	}
	return s.between(from, until, n)
}

// between collects occurrences in [from, until]; n < 0 means no cap.
func (s *RecurringIntervalSet) between(from, until time.Time, n int) ([]model.Interval, bool) {
	fromKey, untilKey := from.UnixMilli(), until.UnixMilli()
	end := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].key > untilKey })

	out := make([]model.Interval, 0)
	for _, e := range s.entries[:end] {
		if iv, ok := e.interval.Fixed(); ok {
			if e.key >= fromKey {
				out = append(out, iv)
			}
			continue
		}
		r, _ := e.interval.Recurring()
		out = s.appendOccurrences(out, r, from, until, n)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if n >= 0 && len(out) > n {
		return out[:n], true
	}
	return out, false
}

// appendOccurrences adds the non-excluded occurrences of r in [from, until].
// With n >= 0 it stops after n+1 matches, enough to tell a cut happened.
func (s *RecurringIntervalSet) appendOccurrences(out []model.Interval, r RecurringInterval, from, until time.Time, n int) []model.Interval {
	zone := zoneOf(r)
	fromE, untilE := recur.ToEvaluator(from, zone), recur.ToEvaluator(until, zone)

	keep := func(occ time.Time) bool {
		at := recur.FromEvaluator(occ, zone)
		if s.isExcluded(at) || at.Before(from) || at.After(until) {
			return false
		}
		out = append(out, model.NewInterval(at, r.Duration))
		return true
	}

	if n < 0 {
		for _, occ := range r.Rule.Between(fromE, untilE, true) {
			keep(occ)
		}
		return out
	}

	next := r.Rule.Iterator()
	for found := 0; found <= n; {
		occ, ok := next()
		if !ok || occ.After(untilE) {
			break
		}
		if occ.Before(fromE) {
			continue
		}
		if keep(occ) {
			found++
		}
	}
	return out
}

// FirstAfter returns the earliest occurrence starting strictly after from.
func (s *RecurringIntervalSet) FirstAfter(from time.Time) mo.Option[model.Interval] {
	var best model.Interval
	found := false
	for _, e := range s.entries {
		// no occurrence of this or any later entry precedes its key
		if found && e.key > best.Start.UnixMilli() {
			break
		}

		var cand model.Interval
		if iv, ok := e.interval.Fixed(); ok {
			if !iv.Start.After(from) {
				continue
			}
			cand = iv
		} else {
			r, _ := e.interval.Recurring()
			next, ok := s.nextOccurrence(r, from)
			if !ok {
				continue
			}
			cand = model.NewInterval(next, r.Duration)
		}
		if !found || cand.Start.Before(best.Start) {
			best, found = cand, true
		}
	}
	if !found {
		return mo.None[model.Interval]()
	}
	return mo.Some(best)
}

func (s *RecurringIntervalSet) nextOccurrence(r RecurringInterval, from time.Time) (time.Time, bool) {
	zone := zoneOf(r)
	t := recur.ToEvaluator(from, zone)
	for {
		occ, ok := r.Rule.After(t, false)
		if !ok {
			return time.Time{}, false
		}
		at := recur.FromEvaluator(occ, zone)
		if at.After(from) && !s.isExcluded(at) {
			return at, true
		}
		t = occ
	}
}

// Intervals returns the merged sources in order of first occurrence, with
// rules carrying their normalized anchor and bound.
func (s *RecurringIntervalSet) Intervals() []GenericInterval {
	out := make([]GenericInterval, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.interval
	}
	return out
}

// Exclusions returns the excluded occurrence starts in ascending order.
func (s *RecurringIntervalSet) Exclusions() []time.Time {
	out := make([]time.Time, len(s.exclusions))
	for i, ex := range s.exclusions {
		out[i] = ex.at
	}
	return out
}
