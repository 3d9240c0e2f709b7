package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Layout is the persisted form of a booking date, e.g. 2026/10/27.
const Layout = "2006/01/02"

// Date is a civil calendar date with no time-of-day or zone. Day arithmetic is done in UTC
// so a DST transition in the caller's zone can never shift which day is computed.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func New(y int, m time.Month, d int) Date {
	return Of(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// Of returns the date of t in t's own location.
func Of(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the current date in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.Local
	}
	return Of(now.In(loc))
}

func Parse(s string) (Date, error) {
	t, err := time.Parse(Layout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("calendar: parse %q (want YYYY/MM/DD): %w", s, err)
	}
	return Of(t), nil
}

func (d Date) midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(n int) Date {
	return Of(d.midnight().AddDate(0, 0, n))
}

// DaysSince returns d - other in whole days.
func (d Date) DaysSince(other Date) int {
	return int(d.midnight().Sub(other.midnight()).Hours() / 24)
}

func (d Date) Before(other Date) bool { return d.midnight().Before(other.midnight()) }
func (d Date) After(other Date) bool  { return d.midnight().After(other.midnight()) }
func (d Date) IsZero() bool           { return d == Date{} }

// In returns the instant of hh:mm:ss.ns on d in loc.
func (d Date) In(loc *time.Location, hour, min, sec, nsec int) time.Time {
	return time.Date(d.Year, d.Month, d.Day, hour, min, sec, nsec, loc)
}

// String formats d in the persisted layout.
func (d Date) String() string {
	return d.midnight().Format(Layout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	p, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// ISO formats d as YYYY-MM-DD, used for keys and log fields.
func (d Date) ISO() string {
	return d.midnight().Format("2006-01-02")
}
