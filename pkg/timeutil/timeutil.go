// Package timeutil provides the product calendar: a single fixed civil timezone
// used for streak days, daily quotas and quest weeks.
//
// Civil dates are represented as time.Time values at midnight UTC carrying the
// year/month/day of the product zone. That keeps date arithmetic exact (UTC has
// no DST) and round-trips cleanly through PostgreSQL DATE columns.
package timeutil

import (
	"sync"
	"time"
)

// IndiaTZ is the default product timezone (UTC+5:30, no DST).
var IndiaTZ = time.FixedZone("Asia/Kolkata", 5*60*60+30*60)

// FormatDate is the standard date format (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// Calendar answers "what day is it" questions in one fixed zone.
// The zero value is not usable; use NewCalendar.
type Calendar struct {
	loc *time.Location

	mu  sync.RWMutex
	now func() time.Time
}

// NewCalendar creates a calendar for the given zone backed by the wall clock.
func NewCalendar(loc *time.Location) *Calendar {
	if loc == nil {
		loc = IndiaTZ
	}
	return &Calendar{loc: loc, now: time.Now}
}

// SetClock replaces the time source. Used by tests.
func (c *Calendar) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Location returns the calendar's zone.
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Now returns the current instant in the product zone.
func (c *Calendar) Now() time.Time {
	c.mu.RLock()
	now := c.now
	c.mu.RUnlock()
	return now().In(c.loc)
}

// Today returns the current civil date.
func (c *Calendar) Today() time.Time {
	return c.CivilDate(c.Now())
}

// CivilDate converts an instant into the civil date it falls on in the product zone.
func (c *Calendar) CivilDate(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the instant of the most recent civil-day boundary at or before t.
func (c *Calendar) StartOfDay(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// NextDayBoundary returns the instant the civil day containing t ends.
func (c *Calendar) NextDayBoundary(t time.Time) time.Time {
	start := c.StartOfDay(t)
	return time.Date(start.Year(), start.Month(), start.Day()+1, 0, 0, 0, 0, c.loc)
}

// WeekStart returns the civil date of the Monday of the week containing t.
func (c *Calendar) WeekStart(t time.Time) time.Time {
	return MondayOf(c.CivilDate(t))
}

// MondayOf returns the Monday on or before a civil date.
func MondayOf(date time.Time) time.Time {
	weekday := int(date.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return date.AddDate(0, 0, -(weekday - 1))
}

// Date builds a civil date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FormatCivil formats a civil date as YYYY-MM-DD.
func FormatCivil(date time.Time) string {
	return date.Format(FormatDate)
}

// FixedClock returns a clock function pinned to t. Handy in tests.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
