package scheduler

import (
	"time"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/calendar"
	"github.com/example/teesched/internal/window"
)

type State int

const (
	Idle State = iota
	Firing
	Stopped
)

func (s State) String() string {
	switch s {
	case Firing:
		return "firing"
	case Stopped:
		return "stopped"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

type Result struct {
	BookingID int64           `json:"booking_id"`
	Class     window.Class    `json:"class"`
	Status    bookings.Status `json:"status,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Action    Action          `json:"action,omitempty"`
	Deleted   bool            `json:"deleted"`
	Err       string          `json:"error,omitempty"`
}

// Report summarises one pass.
type Report struct {
	RunID   string        `json:"run_id"`
	Day     calendar.Date `json:"day"`
	Started time.Time     `json:"started"`
	Took    time.Duration `json:"took_ns"`

	Due       int `json:"due"`
	Expired   int `json:"expired"`
	Pending   int `json:"pending"`
	Malformed int `json:"malformed"`

	Succeeded       int `json:"succeeded"`
	FailedPermanent int `json:"failed_permanent"`
	FailedRetryable int `json:"failed_retryable"`
	Deleted         int `json:"deleted"`
	Retained        int `json:"retained"`

	Results []Result `json:"results,omitempty"`
}

func (r *Report) tally() {
	for _, res := range r.Results {
		if res.Deleted {
			r.Deleted++
		}
		if res.Class != window.Due || res.Status == "" {
			continue
		}
		switch res.Status {
		case bookings.Succeeded:
			r.Succeeded++
		case bookings.FailedRetryable:
			r.FailedRetryable++
		default:
			r.FailedPermanent++
		}
		if res.Action == Retain {
			r.Retained++
		}
	}
}

// Classified is one row of a Preview.
type Classified struct {
	bookings.Request
	Class window.Class `json:"class"`
	Error string       `json:"error,omitempty"`
}

type Status struct {
	State    State      `json:"state"`
	NextFire *time.Time `json:"next_fire,omitempty"`
	LastRun  *Report    `json:"last_run,omitempty"`
}
