package ics

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"

	appLog "recurset/internal/log"
	"recurset/internal/model"
	"recurset/internal/recur"
)

// ParseDefaults seeds the parser state before the first DTSTART or
// DURATION line.
type ParseDefaults struct {
	Start    mo.Option[time.Time]
	Duration mo.Option[model.Duration]
	// Until bounds every RRULE that carries no UNTIL of its own.
	Until mo.Option[time.Time]
	// Zone is used for date-times without TZID or "Z". Defaults to the
	// zone of Start, then time.Local.
	Zone *time.Location
}

type ParseOptions struct {
	Defaults       ParseDefaults
	IterationLimit int
}

var (
	foldedLine = regexp.MustCompile(`\r\n[ \t]`)
	lineBreaks = regexp.MustCompile(`\n+`)
	utcUntil   = regexp.MustCompile(`UNTIL=[0-9T]+Z`)
)

type parser struct {
	start    mo.Option[time.Time]
	duration mo.Option[model.Duration]
	until    mo.Option[time.Time]
	zone     *time.Location

	intervals  []GenericInterval
	exclusions []time.Time
}

// Parse reads DTSTART, DURATION, RRULE, RDATE and EXDATE lines and builds
// the resulting set. Any malformed line aborts the whole parse.
func Parse(text string, opts ParseOptions) (*RecurringIntervalSet, error) {
	p := &parser{
		start:    opts.Defaults.Start,
		duration: opts.Defaults.Duration,
		until:    opts.Defaults.Until,
		zone:     opts.Defaults.Zone,
	}
	if p.zone == nil {
		if st, ok := p.start.Get(); ok {
			p.zone = st.Location()
		} else {
			p.zone = time.Local
		}
	}

	text = foldedLine.ReplaceAllString(text, "")
	for _, line := range lineBreaks.Split(text, -1) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		prop, err := ParseProperty(line)
		if err != nil {
			return nil, err
		}
		if err := p.handle(prop); err != nil {
			return nil, err
		}
	}

	set := NewRecurringIntervalSet(SetConfig{
		Intervals:      p.intervals,
		Exclusions:     p.exclusions,
		IterationLimit: opts.IterationLimit,
	})
	appLog.Debug("parsed recurrence set",
		"sources", len(p.intervals), "exclusions", len(p.exclusions),
		"entries", len(set.entries), "unbounded", set.Unbounded())
	return set, nil
}

func (p *parser) handle(prop Property) error {
	switch prop.Name {
	case "DTSTART":
		return p.dtstart(prop)
	case "DURATION":
		if _, err := prop.AllowedParams(); err != nil {
			return err
		}
		d, err := ParseDuration(prop.Value)
		if err != nil {
			return fmt.Errorf("invalid DURATION value: %w", err)
		}
		p.duration = mo.Some(d)
		return nil
	case "RRULE":
		return p.rrule(prop)
	case "RDATE":
		return p.rdate(prop)
	case "EXDATE":
		return p.exdate(prop)
	default:
		return fmt.Errorf("%w: unrecognized recurrence rule property: %s", ErrSyntax, prop.Name)
	}
}

func (p *parser) dtstart(prop Property) error {
	params, err := prop.AllowedParams("TZID")
	if err != nil {
		return err
	}
	loc, err := p.location(params[0])
	if err != nil {
		return err
	}
	start, err := ParseDateTime(prop.Value, loc)
	if err != nil {
		return fmt.Errorf("invalid DTSTART value: %w", err)
	}
	p.start = mo.Some(start)
	p.zone = start.Location()
	return nil
}

func (p *parser) rrule(prop Property) error {
	if _, err := prop.AllowedParams(); err != nil {
		return err
	}
	start, ok := p.start.Get()
	if !ok {
		return fmt.Errorf("%w: no start specified for RRULE", ErrSequence)
	}
	d, ok := p.duration.Get()
	if !ok {
		return fmt.Errorf("%w: no duration specified for RRULE", ErrSequence)
	}

	opt, err := recur.ParseBody(prop.Value)
	if err != nil {
		return fmt.Errorf("%w: invalid RRULE %q: %v", ErrValue, prop.Value, err)
	}
	switch opt.Freq {
	case rrule.YEARLY, rrule.MONTHLY, rrule.WEEKLY, rrule.DAILY:
	default:
		return fmt.Errorf("%w: unsupported frequency in RRULE: %v", ErrValue, opt.Freq)
	}

	zone := start.Location()
	opt.Dtstart = recur.ToEvaluator(start, zone)
	switch {
	case !opt.Until.IsZero() && utcUntil.MatchString(strings.ToUpper(prop.Value)):
		opt.Until = recur.ToEvaluator(opt.Until, zone)
	case opt.Until.IsZero():
		if until, ok := p.until.Get(); ok {
			opt.Until = recur.ToEvaluator(until, zone)
		}
	}

	rule, err := recur.New(opt)
	if err != nil {
		return fmt.Errorf("%w: invalid RRULE %q: %v", ErrValue, prop.Value, err)
	}
	p.intervals = append(p.intervals, RecurringSource(RecurringInterval{
		Rule:     rule,
		Duration: d,
		Zone:     zone,
	}))
	return nil
}

func (p *parser) rdate(prop Property) error {
	params, err := prop.AllowedParams("TZID", "VALUE")
	if err != nil {
		return err
	}
	loc, err := p.location(params[0])
	if err != nil {
		return err
	}

	switch strings.ToUpper(params[1]) {
	case "", "DATE-TIME":
		d, ok := p.duration.Get()
		if !ok {
			return fmt.Errorf("%w: no duration specified for RDATE", ErrSequence)
		}
		for _, v := range strings.Split(prop.Value, ",") {
			start, err := ParseDateTime(v, loc)
			if err != nil {
				return fmt.Errorf("invalid RDATE value: %w", err)
			}
			p.intervals = append(p.intervals, FixedInterval(model.NewInterval(start, d)))
		}
	case "PERIOD":
		for _, v := range strings.Split(prop.Value, ",") {
			iv, err := ParsePeriod(v, loc)
			if err != nil {
				return fmt.Errorf("invalid RDATE value: %w", err)
			}
			p.intervals = append(p.intervals, FixedInterval(iv))
		}
	default:
		return fmt.Errorf("%w: invalid RDATE VALUE type %s", ErrValue, params[1])
	}
	return nil
}

func (p *parser) exdate(prop Property) error {
	params, err := prop.AllowedParams("TZID")
	if err != nil {
		return err
	}
	loc, err := p.location(params[0])
	if err != nil {
		return err
	}
	for _, v := range strings.Split(prop.Value, ",") {
		at, err := ParseDateTime(v, loc)
		if err != nil {
			return fmt.Errorf("invalid EXDATE value: %w", err)
		}
		p.exclusions = append(p.exclusions, at)
	}
	return nil
}

func (p *parser) location(tzid string) (*time.Location, error) {
	if tzid == "" {
		return p.zone, nil
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown time zone %q", ErrValue, tzid)
	}
	return loc, nil
}
