package ics

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	ical "github.com/emersion/go-ical"

	"recurset/internal/model"
)

const (
	dateTimeLayout    = "20060102T150405"
	dateTimeLayoutUTC = "20060102T150405Z"
)

// ParseDateTime parses a yyyyMMdd'T'HHmmss token. A trailing "Z" pins the
// value to UTC; otherwise the wall clock is read in loc (UTC when nil).
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		t, err := time.ParseInLocation(dateTimeLayout, s[:len(s)-1], time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid date-time %q", ErrValue, s)
		}
		return t, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(dateTimeLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date-time %q", ErrValue, s)
	}
	return t, nil
}

// FormatDateTime renders t as a date-time token. UTC values carry a "Z"
// suffix and no TZID; any other zone yields its name as tzid.
func FormatDateTime(t time.Time) (value, tzid string) {
	if isUTC(t.Location()) {
		return t.UTC().Format(dateTimeLayoutUTC), ""
	}
	return t.Format(dateTimeLayout), t.Location().String()
}

func isUTC(loc *time.Location) bool {
	return loc == time.UTC || (loc != nil && loc.String() == "UTC")
}

// calendarDuration splits a duration into its sign, date fields and the
// clock part after "T".
var calendarDuration = regexp.MustCompile(`^([+-])?P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)W)?(?:(\d+)D)?(T(.*))?$`)

// ParseDuration parses an ISO 8601 duration such as P1M, P1DT12H or
// -PT30M. Years, months, weeks and days are kept as calendar fields.
func ParseDuration(s string) (model.Duration, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	m := calendarDuration.FindStringSubmatch(in)
	if m == nil || m[2]+m[3]+m[4]+m[5]+m[6] == "" || (m[6] != "" && m[7] == "") {
		return model.Duration{}, fmt.Errorf("%w: invalid duration %q", ErrValue, s)
	}

	var d model.Duration
	fields := []*int{&d.Years, &d.Months, nil, &d.Days}
	for i, f := range fields {
		if m[i+2] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+2])
		if err != nil {
			return model.Duration{}, fmt.Errorf("%w: invalid duration %q: %v", ErrValue, s, err)
		}
		if f == nil {
			d.Days += 7 * n
			continue
		}
		*f += n
	}

	if m[7] != "" {
		prop := ical.NewProp(ical.PropDuration)
		prop.Value = "PT" + m[7]
		clock, err := prop.Duration()
		if err != nil {
			return model.Duration{}, fmt.Errorf("%w: invalid duration %q: %v", ErrValue, s, err)
		}
		d.Clock = clock
	}

	if m[1] == "-" {
		d = d.Neg()
	}
	return d, nil
}

// FormatDuration renders d as [-]P[nY][nM][nD][T[nH][nM][nS]], dropping zero
// fields and sub-second precision. A zero duration is PT0S.
func FormatDuration(d model.Duration) string {
	var b strings.Builder
	if d.Negative() {
		b.WriteByte('-')
		d = d.Neg()
	}
	b.WriteByte('P')

	for _, f := range []struct {
		n    int
		unit string
	}{{d.Years, "Y"}, {d.Months, "M"}, {d.Days, "D"}} {
		if f.n > 0 {
			b.WriteString(strconv.Itoa(f.n) + f.unit)
		}
	}

	secs := int64(d.Clock / time.Second)
	if secs > 0 {
		b.WriteByte('T')
		h, m, s := secs/3600, (secs/60)%60, secs%60
		if h > 0 {
			b.WriteString(strconv.FormatInt(h, 10) + "H")
		}
		if m > 0 {
			b.WriteString(strconv.FormatInt(m, 10) + "M")
		}
		if s > 0 {
			b.WriteString(strconv.FormatInt(s, 10) + "S")
		}
	}

	if out := b.String(); out != "P" && out != "-P" {
		return out
	}
	return "PT0S"
}

// ParsePeriod parses a PERIOD value, either start/end or start/duration.
func ParsePeriod(s string, loc *time.Location) (model.Interval, error) {
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return model.Interval{}, fmt.Errorf("%w: invalid period %q: missing separator", ErrValue, s)
	}

	start, err := ParseDateTime(startStr, loc)
	if err != nil {
		return model.Interval{}, fmt.Errorf("%w: invalid period %q: bad start", ErrValue, s)
	}

	var end time.Time
	if isDurationToken(endStr) {
		d, err := ParseDuration(endStr)
		if err != nil {
			return model.Interval{}, fmt.Errorf("%w: invalid period %q: bad duration", ErrValue, s)
		}
		end = d.AddTo(start)
	} else {
		end, err = ParseDateTime(endStr, loc)
		if err != nil {
			return model.Interval{}, fmt.Errorf("%w: invalid period %q: bad end", ErrValue, s)
		}
	}

	if end.Before(start) {
		return model.Interval{}, fmt.Errorf("%w: invalid period %q: end before start", ErrValue, s)
	}
	return model.Interval{Start: start, End: end}, nil
}

func isDurationToken(s string) bool {
	s = strings.TrimLeft(strings.TrimSpace(s), "+-")
	return strings.HasPrefix(s, "P") || strings.HasPrefix(s, "p")
}
