package ics

import (
	"math"
	"regexp"
	"strings"

	ical "github.com/arran4/golang-ical"

	appLog "recurset/internal/log"
	"recurset/internal/model"
)

var untilUTCSuffix = regexp.MustCompile(`(;UNTIL=[0-9T]+)Z`)

// serializing never folds lines
var lineConfig = &ical.SerializationConfiguration{
	MaxLength:         math.MaxInt32,
	PropertyMaxLength: math.MaxInt32,
	NewLine:           "\n",
}

// String renders the set in the text format accepted by Parse. A DURATION
// line is written whenever the duration changes between entries; each entry
// is then a DTSTART and RRULE pair or an RDATE line. EXDATE lines follow in
// ascending order.
func (s *RecurringIntervalSet) String() string {
	var b strings.Builder
	w := lineWriter{b: &b}

	var prev model.Duration
	for i, e := range s.entries {
		if d := e.interval.Duration(); i == 0 || d != prev {
			w.write(ical.PropertyDuration, FormatDuration(d), "")
			prev = d
		}

		v, tzid := FormatDateTime(e.interval.Start())
		r, ok := e.interval.Recurring()
		if !ok {
			w.write(ical.PropertyRdate, v, tzid)
			continue
		}
		w.write(ical.PropertyDtstart, v, tzid)

		body := ";" + r.Rule.String()
		if r.Zone == nil || !isUTC(r.Zone) {
			body = untilUTCSuffix.ReplaceAllString(body, "$1")
		}
		w.write(ical.PropertyRrule, body[1:], "")
	}

	for _, ex := range s.exclusions {
		v, tzid := FormatDateTime(ex.at)
		w.write(ical.PropertyExdate, v, tzid)
	}

	return strings.TrimSuffix(b.String(), "\n")
}

type lineWriter struct {
	b *strings.Builder
}

func (w lineWriter) write(name ical.Property, value, tzid string) {
	bp := &ical.BaseProperty{
		IANAToken:      string(name),
		ICalParameters: map[string][]string{},
		Value:          value,
	}
	if tzid != "" {
		bp.ICalParameters[string(ical.ParameterTzid)] = []string{tzid}
	}
	if err := bp.SerializeTo(w.b, lineConfig); err != nil {
		// strings.Builder writes do not fail
		appLog.Error("serialize line failed", err, "property", string(name))
	}
}
