// Package gate decides when a once-per-day game opens again.
package gate

import "time"

// Calendar resets at local midnight in Location.
type Calendar struct {
	Location *time.Location
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewCalendar returns a calendar for loc (UTC when nil).
func NewCalendar(loc *time.Location) *Calendar {
	return &Calendar{Location: loc}
}

// Now returns the current time in the calendar's location.
func (c *Calendar) Now() time.Time {
	now := time.Now
	if c.Clock != nil {
		now = c.Clock
	}
	return now().In(c.location())
}

// HasReset reports whether a midnight has passed between since and now.
// A zero since always counts as reset.
func (c *Calendar) HasReset(since time.Time) bool {
	if since.IsZero() {
		return true
	}
	return !c.Now().Before(c.NextReset(since))
}

// NextReset returns the first local midnight strictly after t.
func (c *Calendar) NextReset(t time.Time) time.Time {
	t = t.In(c.location())
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, c.location())
}

func (c *Calendar) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
