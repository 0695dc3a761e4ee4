// Package serviceday groups instants into 24-hour service days whose boundary
// is a fixed local hour instead of midnight.
package serviceday

import (
	"time"

	"github.com/wolfman30/booking-reminders/internal/clock"
)

// DefaultBoundaryHour is the local hour at which a service day starts.
const DefaultBoundaryHour = 2

// DateLayout is the DD.MM.YY rendering used in user-facing messages.
const DateLayout = "02.01.06"

// Span is the width of a window on days without a DST transition.
const Span = 24*time.Hour - time.Millisecond

// Window is an inclusive [Min, Max] service day.
type Window struct {
	Min time.Time
	Max time.Time
}

// Contains reports whether t falls inside the window, both ends inclusive.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Min) && !t.After(w.Max)
}

// Date renders the calendar date the service day starts on.
func (w Window) Date() string {
	return w.Min.Format(DateLayout)
}

// Bucket returns the service day containing t. Min is the most recent instant
// at or before t that equals local midnight plus boundaryHour; Max is one
// millisecond before the next day's boundary, so windows tile without gaps
// even across DST transitions (where the width is 23h or 25h minus 1ms).
func Bucket(t time.Time, boundaryHour int, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	y, m, d := local.Date()
	min := time.Date(y, m, d, boundaryHour, 0, 0, 0, loc)
	if min.After(t) {
		d--
		min = time.Date(y, m, d, boundaryHour, 0, 0, 0, loc)
	}
	next := time.Date(y, m, d+1, boundaryHour, 0, 0, 0, loc)
	return Window{Min: min, Max: next.Add(-time.Millisecond)}
}

// Calculator binds the boundary hour and timezone.
type Calculator struct {
	boundaryHour int
	loc          *time.Location
}

// NewCalculator returns a calculator for the given boundary hour and zone.
func NewCalculator(boundaryHour int, loc *time.Location) *Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return &Calculator{boundaryHour: boundaryHour, loc: loc}
}

// FromClock builds a calculator in the clock service's timezone.
func FromClock(c *clock.Service, boundaryHour int) *Calculator {
	return NewCalculator(boundaryHour, c.Location())
}

// For returns the service day containing t.
func (c *Calculator) For(t time.Time) Window {
	return Bucket(t, c.boundaryHour, c.loc)
}

// Tomorrow returns the service day containing now + 24h.
func (c *Calculator) Tomorrow(now time.Time) Window {
	return c.For(now.Add(24 * time.Hour))
}

// Location returns the calculator's timezone.
func (c *Calculator) Location() *time.Location {
	return c.loc
}
