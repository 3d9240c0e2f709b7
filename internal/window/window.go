// Package window decides, for a given calendar day, what the scheduler should do with a
// stored booking request.
package window

import (
	"errors"
	"fmt"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/calendar"
)

// DefaultOpenOffsetDays is how far ahead the reservation site opens a date.
const DefaultOpenOffsetDays = 8

var ErrMalformedRecord = errors.New("window: malformed record")

type Class int

const (
	Pending Class = iota
	Due
	Expired
)

func (c Class) String() string {
	switch c {
	case Due:
		return "due"
	case Expired:
		return "expired"
	default:
		return "pending"
	}
}

func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// Rules holds the booking-window policy. The zero value is not usable; start from Default.
type Rules struct {
	OpenOffsetDays int
	// RetryDays lets a request retained after a retryable failure be due again on each of
	// the next RetryDays days, as long as the target date has not arrived.
	RetryDays int
}

func Default() Rules {
	return Rules{OpenOffsetDays: DefaultOpenOffsetDays}
}

func (r Rules) Validate() error {
	if r.OpenOffsetDays < 1 {
		return fmt.Errorf("window: open offset must be at least 1 day, got %d", r.OpenOffsetDays)
	}
	if r.RetryDays < 0 || r.RetryDays >= r.OpenOffsetDays {
		return fmt.Errorf("window: retry days must be in [0,%d), got %d", r.OpenOffsetDays, r.RetryDays)
	}
	return nil
}

// OpenDay is the day the site starts accepting bookings for target.
func (r Rules) OpenDay(target calendar.Date) calendar.Date {
	return target.AddDays(-r.OpenOffsetDays)
}

// Classify puts req into exactly one of Due, Expired or Pending for today. It has no side
// effects. A record whose dates or participants cannot be trusted yields
// ErrMalformedRecord and must be left in place.
func (r Rules) Classify(today calendar.Date, req bookings.Request) (Class, error) {
	if req.ReadErr != nil {
		return Pending, fmt.Errorf("%w: %v", ErrMalformedRecord, req.ReadErr)
	}
	target, err := calendar.Parse(req.TargetDate)
	if err != nil {
		return Pending, fmt.Errorf("%w: booking %d target date: %v", ErrMalformedRecord, req.ID, err)
	}
	if n := len(req.Participants); n < 1 || n > bookings.MaxParticipants {
		return Pending, fmt.Errorf("%w: booking %d has %d participants", ErrMalformedRecord, req.ID, n)
	}

	var attempted calendar.Date
	if req.AttemptedOn != "" {
		attempted, err = calendar.Parse(req.AttemptedOn)
		if err != nil {
			return Pending, fmt.Errorf("%w: booking %d attempted on: %v", ErrMalformedRecord, req.ID, err)
		}
	}

	// One attempt per request per day.
	if attempted == today {
		return Pending, nil
	}

	open := r.OpenDay(target)
	switch {
	case open == today:
		return Due, nil
	case open.Before(today):
		if r.retryable(today, open, target, attempted, req.LastOutcome) {
			return Due, nil
		}
		return Expired, nil
	default:
		return Pending, nil
	}
}

func (r Rules) retryable(today, open, target, attempted calendar.Date, last string) bool {
	if r.RetryDays <= 0 || attempted.IsZero() {
		return false
	}
	if bookings.Status(last) != bookings.FailedRetryable {
		return false
	}
	return today.DaysSince(open) <= r.RetryDays && today.Before(target)
}
