package recur

import "time"

// ToEvaluator converts a zoned timestamp into the UTC-tagged wall-clock
// value the rule evaluator works with. If zone is non-nil, t is first moved
// into that zone; the resulting local fields are then reinterpreted as UTC.
func ToEvaluator(t time.Time, zone *time.Location) time.Time {
	if zone != nil {
		t = t.In(zone)
	}
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// FromEvaluator is the inverse of ToEvaluator: the UTC fields of t are
// reinterpreted as wall-clock fields in zone, keeping the local time of day.
// A nil zone yields UTC.
func FromEvaluator(t time.Time, zone *time.Location) time.Time {
	t = t.UTC()
	if zone == nil {
		return t
	}
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), zone)
}
