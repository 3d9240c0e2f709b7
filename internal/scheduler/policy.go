package scheduler

import (
	"fmt"
	"strings"

	"github.com/example/teesched/internal/bookings"
)

// Action is what happens to a request after it has been attempted.
type Action string

const (
	Delete Action = "delete"
	Retain Action = "retain"
)

func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case Delete, "":
		return Delete, nil
	case Retain:
		return Retain, nil
	default:
		return "", fmt.Errorf("scheduler: unknown retirement action %q (want delete or retain)", s)
	}
}

// Policy picks an Action per outcome. DefaultPolicy deletes after any attempt: one shot
// per request.
type Policy struct {
	OnSuccess   Action
	OnPermanent Action
	OnRetryable Action
}

func DefaultPolicy() Policy {
	return Policy{OnSuccess: Delete, OnPermanent: Delete, OnRetryable: Delete}
}

func (p Policy) For(s bookings.Status) Action {
	var a Action
	switch s {
	case bookings.Succeeded:
		a = p.OnSuccess
	case bookings.FailedRetryable:
		a = p.OnRetryable
	default:
		a = p.OnPermanent
	}
	if a == "" {
		return Delete
	}
	return a
}
