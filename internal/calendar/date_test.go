package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("2026/10/27")
	require.NoError(t, err)
	assert.Equal(t, New(2026, time.October, 27), d)
	assert.Equal(t, "2026/10/27", d.String())
	assert.Equal(t, "2026-10-27", d.ISO())

	for _, bad := range []string{"", "2026-10-27", "27/10/2026", "2026/13/01", "tomorrow"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestAddDaysAcrossMonthAndYear(t *testing.T) {
	assert.Equal(t, New(2026, time.November, 4), New(2026, time.October, 27).AddDays(8))
	assert.Equal(t, New(2027, time.January, 2), New(2026, time.December, 25).AddDays(8))
	assert.Equal(t, New(2024, time.February, 29), New(2024, time.March, 8).AddDays(-8))
}

func TestDaysSince(t *testing.T) {
	a := New(2026, time.October, 19)
	assert.Equal(t, 8, a.AddDays(8).DaysSince(a))
	assert.Equal(t, -3, a.AddDays(-3).DaysSince(a))
	assert.Equal(t, 0, a.DaysSince(a))
}

func TestTodayIgnoresTimeOfDayAndDST(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2026-03-08 is the spring-forward day in New York.
	late := time.Date(2026, time.March, 8, 23, 59, 59, 0, loc)
	assert.Equal(t, New(2026, time.March, 8), Today(late, loc))
	assert.Equal(t, New(2026, time.March, 9), Today(late, loc).AddDays(1))

	// The same instant seen from UTC is already the next day.
	assert.Equal(t, New(2026, time.March, 9), Today(late, time.UTC))
}

func TestBeforeAfter(t *testing.T) {
	a := New(2026, time.October, 19)
	b := a.AddDays(1)
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Before(a))
	assert.True(t, Date{}.IsZero())
}

func TestTextRoundTrip(t *testing.T) {
	d := New(2026, time.October, 27)
	b, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "2026/10/27", string(b))

	var got Date
	require.NoError(t, got.UnmarshalText(b))
	assert.Equal(t, d, got)
	assert.Error(t, got.UnmarshalText([]byte("27.10.2026")))
}
