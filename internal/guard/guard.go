// Package guard makes sure a calendar day is fired at most once, even when two
// scheduler processes overlap during a restart.
package guard

import (
	"context"
	"sync"

	"github.com/example/teesched/internal/calendar"
)

type Guard interface {
	// Claim reports whether the caller won day. Only the winner fires.
	Claim(ctx context.Context, day calendar.Date) (bool, error)
}

// Memory is an in-process Guard.
type Memory struct {
	mu      sync.Mutex
	claimed map[calendar.Date]struct{}
}

func NewMemory() *Memory {
	return &Memory{claimed: map[calendar.Date]struct{}{}}
}

func (m *Memory) Claim(_ context.Context, day calendar.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claimed[day]; ok {
		return false, nil
	}
	m.claimed[day] = struct{}{}
	// Keep the map small; only recent days matter.
	for d := range m.claimed {
		if d.Before(day.AddDays(-7)) {
			delete(m.claimed, d)
		}
	}
	return true, nil
}
