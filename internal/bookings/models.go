package bookings

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no booking matches the lookup.
	ErrNotFound = errors.New("bookings: not found")
	// ErrInvalidSort is returned for sort expressions outside the whitelist.
	ErrInvalidSort = errors.New("bookings: invalid sort")
	// ErrUnscopedUpdate guards against updates without an id filter.
	ErrUnscopedUpdate = errors.New("bookings: update requires an id filter")
)

// Booking is a reserved time slot between a subject and a provider.
// A booking only counts against the provider's daily capacity once Active.
type Booking struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	ProviderID  string    `json:"provider_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewBooking carries the fields a subject supplies when booking.
type NewBooking struct {
	SubjectID   string
	ProviderID  string
	ScheduledAt time.Time
}

// Fields lists the mutable columns; nil pointers are left untouched.
type Fields struct {
	ScheduledAt *time.Time
	Active      *bool
}

// Empty reports whether the update would change nothing.
func (f Fields) Empty() bool {
	return f.ScheduledAt == nil && f.Active == nil
}

// Filter narrows count/find/update queries. Zero values are ignored; the date
// range is inclusive on both ends.
type Filter struct {
	ID         string
	SubjectID  string
	ProviderID string
	Active     *bool
	MinDate    *time.Time
	MaxDate    *time.Time
}

// Matches applies the filter to a single booking.
func (f Filter) Matches(b Booking) bool {
	if f.ID != "" && b.ID != f.ID {
		return false
	}
	if f.SubjectID != "" && b.SubjectID != f.SubjectID {
		return false
	}
	if f.ProviderID != "" && b.ProviderID != f.ProviderID {
		return false
	}
	if f.Active != nil && b.Active != *f.Active {
		return false
	}
	if f.MinDate != nil && b.ScheduledAt.Before(*f.MinDate) {
		return false
	}
	if f.MaxDate != nil && b.ScheduledAt.After(*f.MaxDate) {
		return false
	}
	return true
}

// SortField is a whitelisted ordering column.
type SortField string

const (
	SortCreatedAt   SortField = "createdAt"
	SortScheduledAt SortField = "scheduledAt"
)

// Sort orders find results; ties break on id.
type Sort struct {
	Field SortField
	Desc  bool
}

// DefaultSort lists the newest bookings first.
var DefaultSort = Sort{Field: SortCreatedAt, Desc: true}

// ParseSort accepts "field" or "-field" for descending order.
func ParseSort(raw string) (Sort, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultSort, nil
	}
	s := Sort{}
	if strings.HasPrefix(raw, "-") {
		s.Desc = true
		raw = raw[1:]
	}
	switch SortField(raw) {
	case SortCreatedAt, SortScheduledAt:
		s.Field = SortField(raw)
	default:
		return Sort{}, fmt.Errorf("%w: %q", ErrInvalidSort, raw)
	}
	return s, nil
}

func (s Sort) String() string {
	if s.Desc {
		return "-" + string(s.Field)
	}
	return string(s.Field)
}

func (s Sort) column() string {
	if s.Field == SortScheduledAt {
		return "scheduled_at"
	}
	return "created_at"
}

// BoolPtr is a small helper for Filter.Active and Fields.Active.
func BoolPtr(v bool) *bool {
	return &v
}

// TimePtr is a small helper for Filter dates and Fields.ScheduledAt.
func TimePtr(t time.Time) *time.Time {
	return &t
}
