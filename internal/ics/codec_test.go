package ics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurset/internal/model"
)

func TestParseDateTime(t *testing.T) {
	chi := chicago(t)

	got, err := ParseDateTime("20200229T080000Z", chi)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(utc("2020-02-29T08:00:00Z")))

	got, err = ParseDateTime("20200229T020000", chi)
	require.NoError(t, err)
	assert.True(t, got.Equal(utc("2020-02-29T08:00:00Z")))
	assert.Equal(t, chi, got.Location())

	got, err = ParseDateTime("20200229T020000", nil)
	require.NoError(t, err)
	assert.True(t, got.Equal(utc("2020-02-29T02:00:00Z")))

	for _, bad := range []string{"", "X", "20200229", "20201301T000000Z", "20200229T250000"} {
		_, err := ParseDateTime(bad, nil)
		assert.True(t, errors.Is(err, ErrValue), "input %q", bad)
	}
}

func TestFormatDateTime(t *testing.T) {
	chi := chicago(t)

	v, tzid := FormatDateTime(utc("2020-02-29T08:00:00Z"))
	assert.Equal(t, "20200229T080000Z", v)
	assert.Empty(t, tzid)

	v, tzid = FormatDateTime(time.Date(2020, 2, 29, 2, 0, 0, 0, chi))
	assert.Equal(t, "20200229T020000", v)
	assert.Equal(t, "America/Chicago", tzid)

	utcLoc, err := time.LoadLocation("UTC")
	require.NoError(t, err)
	v, tzid = FormatDateTime(time.Date(2020, 2, 29, 8, 0, 0, 0, utcLoc))
	assert.Equal(t, "20200229T080000Z", v)
	assert.Empty(t, tzid)
}

func TestDuration(t *testing.T) {
	tests := []struct {
		in   string
		want model.Duration
		out  string
	}{
		{"PT2H", model.Clock(2 * time.Hour), "PT2H"},
		{"PT90M", model.Clock(90 * time.Minute), "PT1H30M"},
		{"pt45s", model.Clock(45 * time.Second), "PT45S"},
		{"P1D", model.Duration{Days: 1}, "P1D"},
		{"P2W", model.Duration{Days: 14}, "P14D"},
		{"P1M", model.Duration{Months: 1}, "P1M"},
		{"P1Y", model.Duration{Years: 1}, "P1Y"},
		{"P1Y2M3DT4H5M6S", model.Duration{Years: 1, Months: 2, Days: 3, Clock: 4*time.Hour + 5*time.Minute + 6*time.Second}, "P1Y2M3DT4H5M6S"},
		{"P1DT1H1M1S", model.Duration{Days: 1, Clock: time.Hour + time.Minute + time.Second}, "P1DT1H1M1S"},
		{"-PT30M", model.Clock(-30 * time.Minute), "-PT30M"},
		{"-P1D", model.Duration{Days: -1}, "-P1D"},
		{"PT0S", model.Duration{}, "PT0S"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
			assert.Equal(t, tt.out, FormatDuration(d))
		})
	}

	for _, bad := range []string{"2H", "P", "PT", "P1DT", "PX", "P1H", "1D"} {
		_, err := ParseDuration(bad)
		assert.True(t, errors.Is(err, ErrValue), "input %q", bad)
	}
}

func TestParsePeriod(t *testing.T) {
	iv, err := ParsePeriod("20200229T080000Z/20200229T100000Z", nil)
	require.NoError(t, err)
	assert.True(t, iv.Equal(utcSpan("2020-02-29T08:00:00Z", "2020-02-29T10:00:00Z")))

	iv, err = ParsePeriod("20200131T100000Z/PT3H", nil)
	require.NoError(t, err)
	assert.True(t, iv.Equal(utcSpan("2020-01-31T10:00:00Z", "2020-01-31T13:00:00Z")))

	chi := chicago(t)
	iv, err = ParsePeriod("20200229T020000/PT1H", chi)
	require.NoError(t, err)
	assert.True(t, iv.Start.Equal(utc("2020-02-29T08:00:00Z")))
	assert.Equal(t, time.Hour, iv.Duration())

	iv, err = ParsePeriod("20200131T100000Z/P1M", nil)
	require.NoError(t, err)
	assert.True(t, iv.End.Equal(utc("2020-02-29T10:00:00Z")))

	tests := []struct {
		in  string
		msg string
	}{
		{"20200229T080000Z", "missing separator"},
		{"X/20200229T100000Z", "bad start"},
		{"20200229T080000Z/X", "bad end"},
		{"20200229T080000Z/PX", "bad duration"},
		{"20200229T100000Z/20200229T080000Z", "end before start"},
		{"20200229T100000Z/-PT1H", "end before start"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			_, err := ParsePeriod(tt.in, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValue))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
