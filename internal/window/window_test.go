package window

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/calendar"
)

var today = calendar.New(2026, time.October, 19)

func req(target calendar.Date) bookings.Request {
	return bookings.Request{
		ID:           1,
		Owner:        "alice",
		Facility:     "Pine Valley",
		TargetDate:   target.String(),
		TargetTime:   "07:40",
		Participants: []string{"Alice"},
	}
}

func TestClassifyByOffset(t *testing.T) {
	rules := Default()

	tests := []struct {
		days int
		want Class
	}{
		{8, Due},
		{9, Pending},
		{20, Pending},
		{7, Expired},
		{1, Expired},
		{0, Expired},
		{-3, Expired},
	}
	for _, tt := range tests {
		got, err := rules.Classify(today, req(today.AddDays(tt.days)))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "target = today%+d", tt.days)
	}
}

func TestClassifyAcrossMonthAndYearBoundaries(t *testing.T) {
	rules := Default()
	for _, d := range []calendar.Date{
		calendar.New(2026, time.December, 28),
		calendar.New(2028, time.February, 25),
		calendar.New(2026, time.March, 8),
	} {
		got, err := rules.Classify(d, req(d.AddDays(8)))
		require.NoError(t, err)
		assert.Equal(t, Due, got, d.String())
	}
}

func TestClassifyIsPure(t *testing.T) {
	rules := Default()
	r := req(today.AddDays(8))
	first, err1 := rules.Classify(today, r)
	second, err2 := rules.Classify(today, r)
	assert.Equal(t, first, second)
	assert.Equal(t, err1, err2)
}

func TestClassifyMalformed(t *testing.T) {
	rules := Default()

	bad := req(today.AddDays(8))
	bad.TargetDate = "next tuesday"
	_, err := rules.Classify(today, bad)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	bad = req(today.AddDays(8))
	bad.Participants = []string{"a", "b", "c", "d", "e"}
	_, err = rules.Classify(today, bad)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	bad = req(today.AddDays(8))
	bad.Participants = nil
	_, err = rules.Classify(today, bad)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	bad = req(today.AddDays(8))
	bad.AttemptedOn = "yesterday"
	_, err = rules.Classify(today, bad)
	assert.ErrorIs(t, err, ErrMalformedRecord)

	// A row the store could not read in full is never Due, even with a valid date.
	bad = req(today.AddDays(8))
	bad.ReadErr = fmt.Errorf("%w: column attempts", bookings.ErrScanRow)
	_, err = rules.Classify(today, bad)
	assert.ErrorIs(t, err, ErrMalformedRecord)
	assert.ErrorIs(t, err, bookings.ErrScanRow)
}

func TestClassifyAttemptedTodayIsPending(t *testing.T) {
	r := req(today.AddDays(8))
	r.AttemptedOn = today.String()
	got, err := Default().Classify(today, r)
	require.NoError(t, err)
	assert.Equal(t, Pending, got)
}

func TestClassifyRetryExtension(t *testing.T) {
	rules := Rules{OpenOffsetDays: 8, RetryDays: 2}
	open := today
	target := open.AddDays(8)

	r := req(target)
	r.AttemptedOn = open.String()
	r.LastOutcome = string(bookings.FailedRetryable)

	for day, want := range map[int]Class{1: Due, 2: Due, 3: Expired} {
		got, err := rules.Classify(open.AddDays(day), r)
		require.NoError(t, err)
		assert.Equal(t, want, got, "open day +%d", day)
	}

	// Permanent failures and successes do not get another day.
	r.LastOutcome = string(bookings.FailedPermanent)
	got, err := rules.Classify(open.AddDays(1), r)
	require.NoError(t, err)
	assert.Equal(t, Expired, got)

	// Never attempted means missed, not retryable.
	r = req(target)
	got, err = rules.Classify(open.AddDays(1), r)
	require.NoError(t, err)
	assert.Equal(t, Expired, got)
}

func TestRulesValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())
	assert.Error(t, Rules{OpenOffsetDays: 0}.Validate())
	assert.Error(t, Rules{OpenOffsetDays: 8, RetryDays: 8}.Validate())
	assert.Error(t, Rules{OpenOffsetDays: 8, RetryDays: -1}.Validate())
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "due", Due.String())
	assert.Equal(t, "expired", Expired.String())
	assert.Equal(t, "pending", Pending.String())
}
