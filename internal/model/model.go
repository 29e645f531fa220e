package model

import "time"

// Interval is a single concrete [Start, End) range. The zone of the interval
// is the Location of Start; End is normally in the same zone.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval builds the interval starting at start and lasting d, with the
// calendar part of d applied on start's wall clock.
func NewInterval(start time.Time, d Duration) Interval {
	return Interval{Start: start, End: d.AddTo(start)}
}

// Duration returns the elapsed span of the interval.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Equal reports whether both endpoints denote the same instants,
// regardless of zone.
func (i Interval) Equal(o Interval) bool {
	return i.Start.Equal(o.Start) && i.End.Equal(o.End)
}

// String renders the interval as RFC 3339 start/end, ISO 8601 style.
func (i Interval) String() string {
	return i.Start.Format(time.RFC3339) + "/" + i.End.Format(time.RFC3339)
}

// Duration is a calendar length. Years, Months and Days move the wall clock
// (so P1D spans 23 or 25 hours across a DST change) and Clock is added as
// elapsed time afterwards. A negative duration has every field <= 0.
type Duration struct {
	Years  int
	Months int
	Days   int
	Clock  time.Duration
}

// Clock wraps an elapsed duration.
func Clock(d time.Duration) Duration {
	return Duration{Clock: d}
}

// AddTo returns t moved by d. Years and months keep the day of month,
// clamped to the length of the target month (Jan 31 + P1M is Feb 29 in a
// leap year).
func (d Duration) AddTo(t time.Time) time.Time {
	if d.Years != 0 || d.Months != 0 {
		y, m, day := t.Date()
		hh, mm, ss := t.Clock()
		first := time.Date(y+d.Years, m+time.Month(d.Months), 1, 0, 0, 0, 0, t.Location())
		if last := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day(); day > last {
			day = last
		}
		t = time.Date(first.Year(), first.Month(), day, hh, mm, ss, t.Nanosecond(), t.Location())
	}
	if d.Days != 0 {
		t = t.AddDate(0, 0, d.Days)
	}
	return t.Add(d.Clock)
}

// IsZero reports whether d moves nothing.
func (d Duration) IsZero() bool {
	return d == Duration{}
}

// Negative reports whether d moves backwards.
func (d Duration) Negative() bool {
	return d.Years < 0 || d.Months < 0 || d.Days < 0 || d.Clock < 0
}

// Neg returns d with every field negated.
func (d Duration) Neg() Duration {
	return Duration{Years: -d.Years, Months: -d.Months, Days: -d.Days, Clock: -d.Clock}
}

// Approx converts d to elapsed time with 365-day years, 30-day months and
// 24-hour days. It only orders durations.
func (d Duration) Approx() time.Duration {
	const day = 24 * time.Hour
	return time.Duration(d.Years)*365*day +
		time.Duration(d.Months)*30*day +
		time.Duration(d.Days)*day +
		d.Clock
}
