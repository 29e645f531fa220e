package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterval(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	start := time.Date(2020, 1, 1, 9, 0, 0, 0, time.UTC)
	iv := NewInterval(start, Clock(90*time.Minute))

	assert.Equal(t, 90*time.Minute, iv.Duration())
	assert.Equal(t, "2020-01-01T09:00:00Z/2020-01-01T10:30:00Z", iv.String())

	same := Interval{Start: start.In(chicago), End: iv.End.In(chicago)}
	assert.True(t, iv.Equal(same))
	assert.False(t, iv.Equal(NewInterval(start, Clock(time.Hour))))
}

func TestDuration_AddTo(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	// 2020-03-08 is the spring-forward day in Chicago.
	start := time.Date(2020, 3, 7, 12, 0, 0, 0, chicago)
	iv := NewInterval(start, Duration{Days: 1})
	assert.Equal(t, time.Date(2020, 3, 8, 12, 0, 0, 0, chicago), iv.End)
	assert.Equal(t, 23*time.Hour, iv.Duration())

	elapsed := NewInterval(start, Clock(24*time.Hour))
	assert.Equal(t, 13, elapsed.End.Hour())

	month := Duration{Months: 1, Clock: 30 * time.Minute}
	assert.Equal(t, time.Date(2020, 2, 15, 9, 30, 0, 0, time.UTC),
		month.AddTo(time.Date(2020, 1, 15, 9, 0, 0, 0, time.UTC)))

	leap := time.Date(2020, 1, 31, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2020, 2, 29, 9, 0, 0, 0, time.UTC), Duration{Months: 1}.AddTo(leap))
	assert.Equal(t, time.Date(2021, 2, 28, 9, 0, 0, 0, time.UTC), Duration{Years: 1, Months: 1}.AddTo(leap))

	back := Duration{Years: 1}.Neg()
	assert.True(t, back.Negative())
	assert.Equal(t, time.Date(2019, 1, 15, 0, 0, 0, 0, time.UTC),
		back.AddTo(time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)))
}

func TestDuration_Approx(t *testing.T) {
	assert.True(t, Duration{Months: 1}.Approx() > Duration{Days: 29}.Approx())
	assert.True(t, Duration{Years: 1}.Approx() > Duration{Months: 12}.Approx())
	assert.Equal(t, 25*time.Hour, Duration{Days: 1, Clock: time.Hour}.Approx())
	assert.True(t, Duration{}.IsZero())
	assert.False(t, Clock(time.Second).IsZero())
}
