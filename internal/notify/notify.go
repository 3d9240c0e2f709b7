// Package notify publishes booking outcomes for anything downstream that cares (mail,
// dashboards). Publishing is best effort; the scheduler only logs failures.
package notify

import (
	"context"
	"strconv"
	"time"
)

const (
	KindAttempted = "attempted"
	KindExpired   = "expired"
)

type Event struct {
	Kind       string    `json:"kind"`
	RunID      string    `json:"run_id"`
	BookingID  int64     `json:"booking_id"`
	Owner      string    `json:"owner"`
	Facility   string    `json:"facility"`
	TargetDate string    `json:"target_date"`
	TargetTime string    `json:"target_time"`
	Status     string    `json:"status,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Retired    bool      `json:"retired"`
	At         time.Time `json:"at"`
}

func (e Event) Key() string { return strconv.FormatInt(e.BookingID, 10) }

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
