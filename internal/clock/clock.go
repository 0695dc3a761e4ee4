// Package clock supplies the current instant and the fixed local timezone the
// booking engine reasons in.
package clock

import (
	"fmt"
	"sync"
	"time"
	_ "time/tzdata"
)

// DefaultTimezone is the zone service days and reminder texts are expressed in.
const DefaultTimezone = "Europe/Kyiv"

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// Service is the system clock bound to a fixed IANA timezone.
type Service struct {
	loc *time.Location
	now func() time.Time
}

// New loads tz (DefaultTimezone when empty) and returns a wall clock in it.
func New(tz string) (*Service, error) {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("clock: load location %q: %w", tz, err)
	}
	return &Service{loc: loc, now: time.Now}, nil
}

// NewWithClock binds an existing Clock (usually a Fake) to loc.
func NewWithClock(c Clock, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{loc: loc, now: c.Now}
}

// Now returns the current instant in the service timezone.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

// Location returns the fixed timezone.
func (s *Service) Location() *time.Location {
	return s.loc
}

// Local converts t to the service timezone.
func (s *Service) Local(t time.Time) time.Time {
	return t.In(s.loc)
}

// UTC converts t to UTC.
func (s *Service) UTC(t time.Time) time.Time {
	return t.UTC()
}

// Fake is a manually driven clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a fake clock frozen at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t}
}

// Now returns the frozen instant.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
