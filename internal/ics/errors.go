package ics

import "errors"

var (
	// ErrSyntax is returned for malformed property lines or parameters,
	// unknown property names and parameters not permitted on a property.
	ErrSyntax = errors.New("invalid recurrence syntax")

	// ErrValue is returned for unparsable date-times, durations, periods,
	// RDATE value types and unsupported RRULE frequencies.
	ErrValue = errors.New("invalid recurrence value")

	// ErrSequence is returned when RRULE or RDATE appear before the start
	// or duration they depend on has been established.
	ErrSequence = errors.New("incomplete recurrence definition")
)
