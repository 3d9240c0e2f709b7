// Package executor hands one due booking to whatever actually talks to the reservation
// site.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/example/teesched/internal/bookings"
	"github.com/example/teesched/internal/vault"
)

// ErrNotConfigured is returned by FromConfig when neither an endpoint nor a binary is set.
var ErrNotConfigured = errors.New("executor: neither EXECUTOR_URL nor EXECUTOR_BIN is set")

// Attempt is everything the site needs for one reservation.
type Attempt struct {
	BookingID    int64
	Owner        string
	Secret       vault.Secret
	Facility     string
	Times        []string
	Date         string
	Participants []string
}

// NewAttempt copies the slot fields out of req. The caller owns secret and wipes it.
func NewAttempt(req bookings.Request, secret vault.Secret) Attempt {
	return Attempt{
		BookingID:    req.ID,
		Owner:        req.Owner,
		Secret:       secret,
		Facility:     req.Facility,
		Times:        []string{req.TargetTime},
		Date:         req.TargetDate,
		Participants: append([]string(nil), req.Participants...),
	}
}

type Outcome struct {
	Status bookings.Status `json:"status"`
	Detail string          `json:"detail,omitempty"`
}

// Executor performs one attempt. A site-side rejection is an Outcome, not an error;
// errors mean the attempt could not be carried out at all (transport, timeout, crash).
type Executor interface {
	Attempt(ctx context.Context, a Attempt) (Outcome, error)
}

// FromConfig prefers the HTTP endpoint when both are configured.
func FromConfig(url, bin string, timeout time.Duration) (Executor, error) {
	switch {
	case url != "":
		return NewHTTP(url, timeout), nil
	case bin != "":
		return NewCommand(bin, timeout), nil
	default:
		return nil, ErrNotConfigured
	}
}
