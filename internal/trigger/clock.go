// Package trigger fires a callback once per day at a fixed wall-clock time.
//
// Every wait is computed from a fresh reading of the wall clock, so sleeps never
// accumulate drift, and a wait is cut into slices of at most Recheck so clock
// adjustments and early timer wake-ups are noticed. The callback never runs before
// its instant.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultRecheck = time.Minute
	MinRecheck     = time.Second
)

// TimeSource is the clock the trigger reads and sleeps on.
type TimeSource interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// TimeOfDay is a wall-clock time with millisecond-or-better precision.
type TimeOfDay struct {
	Hour, Minute, Second, Nanosecond int
}

var DefaultTime = TimeOfDay{Hour: 7, Minute: 30}

// ParseTimeOfDay accepts HH:MM, HH:MM:SS and HH:MM:SS.fff.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05.999999999", "15:04:05", "15:04"} {
		t, err := time.Parse(layout, s)
		if err == nil {
			return TimeOfDay{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second(), Nanosecond: t.Nanosecond()}, nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("trigger: invalid time of day %q (want HH:MM[:SS[.fff]])", s)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d.%03d", t.Hour, t.Minute, t.Second, t.Nanosecond/int(time.Millisecond))
}

type Option func(*Clock)

// WithRecheck caps how long a single sleep may last. Values under a second are raised
// to one second.
func WithRecheck(d time.Duration) Option {
	return func(c *Clock) {
		if d < MinRecheck {
			d = MinRecheck
		}
		c.recheck = d
	}
}

func WithTimeSource(src TimeSource) Option {
	return func(c *Clock) { c.src = src }
}

type Clock struct {
	at      TimeOfDay
	loc     *time.Location
	recheck time.Duration
	src     TimeSource

	mu    sync.Mutex
	armed time.Time
}

func New(at TimeOfDay, loc *time.Location, opts ...Option) *Clock {
	if loc == nil {
		loc = time.Local
	}
	c := &Clock{at: at, loc: loc, recheck: DefaultRecheck, src: wallClock{}}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Clock) Location() *time.Location { return c.loc }
func (c *Clock) Now() time.Time           { return c.src.Now().In(c.loc) }

// Sleep pauses on the clock's time source; used for backoff between retries.
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	return c.src.Sleep(ctx, d)
}

// Next returns the first occurrence of the configured time strictly after now. On a DST
// transition day the instant is whatever time.Date resolves the wall-clock time to.
func (c *Clock) Next(now time.Time) time.Time {
	n := now.In(c.loc)
	y, m, d := n.Date()
	next := time.Date(y, m, d, c.at.Hour, c.at.Minute, c.at.Second, c.at.Nanosecond, c.loc)
	if !next.After(n) {
		next = time.Date(y, m, d+1, c.at.Hour, c.at.Minute, c.at.Second, c.at.Nanosecond, c.loc)
	}
	return next
}

// Armed reports the instant the clock is currently waiting for, or the zero time when
// it is not waiting.
func (c *Clock) Armed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

func (c *Clock) setArmed(t time.Time) {
	c.mu.Lock()
	c.armed = t
	c.mu.Unlock()
}

// Wait blocks until the wall clock reaches until. It returns ctx.Err() if ctx is done
// first. It never returns nil before until.
func (c *Clock) Wait(ctx context.Context, until time.Time) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		remaining := until.Sub(c.src.Now())
		if remaining <= 0 {
			return nil
		}
		if remaining > c.recheck {
			remaining = c.recheck
		}
		if err := c.src.Sleep(ctx, remaining); err != nil {
			return err
		}
	}
}

// Run waits for each daily occurrence and calls fn synchronously with the scheduled
// instant. It returns ctx.Err() once ctx is done; fn is never called after that.
func (c *Clock) Run(ctx context.Context, fn func(ctx context.Context, at time.Time)) error {
	defer c.setArmed(time.Time{})

	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		next := c.Next(c.src.Now())
		if !last.IsZero() && !next.After(last) {
			// The wall clock went backwards past the last firing.
			next = c.Next(last)
		}
		c.setArmed(next)

		if err := c.Wait(ctx, next); err != nil {
			return err
		}
		c.setArmed(time.Time{})

		fn(ctx, next)
		last = next
	}
}
