// Package appointments is the booking workflow: create, accept, reschedule
// and cancel, with capacity admission and reminder invalidation wired in.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/booking-reminders/internal/accounts"
	"github.com/wolfman30/booking-reminders/internal/admission"
	"github.com/wolfman30/booking-reminders/internal/bookings"
	"github.com/wolfman30/booking-reminders/internal/clock"
	"github.com/wolfman30/booking-reminders/internal/reminders"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

var (
	ErrNotFound         = bookings.ErrNotFound
	ErrAdmissionDenied  = admission.ErrAdmissionDenied
	ErrProviderNotFound = errors.New("appointments: provider not found")
	ErrDatePassed       = errors.New("appointments: date has already passed")
	ErrForbidden        = errors.New("appointments: forbidden")
)

const (
	DefaultLimit = 5
	MinLimit     = 3
	MaxLimit     = 100
)

// CreateInput is a subject's booking request.
type CreateInput struct {
	SubjectID   string
	ProviderID  string
	ScheduledAt time.Time
}

// UpdateInput changes a booking on behalf of an actor.
type UpdateInput struct {
	ID          string
	ActorID     string
	ActorRole   accounts.Role
	ScheduledAt *time.Time
	Active      *bool
}

// Page selects a slice of a listing. Zero values take the defaults.
type Page struct {
	Page  int
	Limit int
	Sort  string
}

// Normalize applies defaults and bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Limit == 0:
		p.Limit = DefaultLimit
	case p.Limit < MinLimit:
		p.Limit = MinLimit
	case p.Limit > MaxLimit:
		p.Limit = MaxLimit
	}
	return p
}

// List is one page of bookings plus the total match count.
type List struct {
	Items []bookings.Booking `json:"items"`
	Total int                `json:"total"`
	Page  int                `json:"page"`
	Limit int                `json:"limit"`
}

// Invalidator clears reminder markers after a date change.
type Invalidator interface {
	OnDateChanged(ctx context.Context, bookingID string) error
}

// Service orchestrates the booking workflow.
type Service struct {
	repo        bookings.Repository
	accounts    accounts.Directory
	admission   *admission.Controller
	invalidator Invalidator
	markers     reminders.DedupCache
	clock       clock.Clock
	logger      *logging.Logger
	timeout     time.Duration
}

// DefaultTimeout bounds one workflow operation, storage and cache calls
// included.
const DefaultTimeout = 5 * time.Second

// Option customises a Service.
type Option func(*Service)

// WithTimeout replaces DefaultTimeout. Zero or less keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService wires the workflow. markers may be nil, in which case
// ReminderStatus reports nothing.
func NewService(repo bookings.Repository, dir accounts.Directory, ctrl *admission.Controller, inv Invalidator, markers reminders.DedupCache, clk clock.Clock, logger *logging.Logger, opts ...Option) *Service {
	if repo == nil || dir == nil || ctrl == nil || inv == nil || clk == nil {
		panic("appointments: missing dependency")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{
		repo:        repo,
		accounts:    dir,
		admission:   ctrl,
		invalidator: inv,
		markers:     markers,
		clock:       clk,
		logger:      logger,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// Create books an inactive slot after checking the date, the provider and
// the provider's capacity on that service day.
func (s *Service) Create(ctx context.Context, in CreateInput) (*bookings.Booking, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if !in.ScheduledAt.After(s.clock.Now()) {
		return nil, ErrDatePassed
	}
	if err := s.requireProvider(ctx, in.ProviderID); err != nil {
		return nil, err
	}

	var created *bookings.Booking
	err := s.admission.Admit(ctx, admission.SiteCreate, in.ProviderID, in.ScheduledAt, func(ctx context.Context) error {
		var err error
		created, err = s.repo.Create(ctx, bookings.NewBooking{
			SubjectID:   in.SubjectID,
			ProviderID:  in.ProviderID,
			ScheduledAt: in.ScheduledAt,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("appointment created",
		"booking_id", created.ID,
		"subject_id", created.SubjectID,
		"provider_id", created.ProviderID,
		"scheduled_at", created.ScheduledAt,
	)
	return created, nil
}

// Accept activates a booking for the provider that owns it. Accepting an
// already active booking is a no-op.
func (s *Service) Accept(ctx context.Context, providerID, bookingID string) (*bookings.Booking, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	b, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ProviderID != providerID {
		return nil, ErrNotFound
	}
	if b.Active {
		return b, nil
	}

	err = s.admission.Admit(ctx, admission.SiteAccept, providerID, b.ScheduledAt, func(ctx context.Context) error {
		return s.repo.UpdateFields(ctx,
			bookings.Filter{ID: b.ID, ProviderID: providerID},
			bookings.Fields{Active: bookings.BoolPtr(true)},
		)
	})
	if err != nil {
		return nil, err
	}
	b.Active = true
	s.logger.Info("appointment accepted", "booking_id", b.ID, "provider_id", providerID)
	return b, nil
}

// Update reschedules and/or (de)activates a booking. Subjects may only move
// their own bookings; only the owning provider may change Active.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*bookings.Booking, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	b, err := s.repo.FindByID(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	isProvider := in.ActorRole == accounts.RoleProvider
	switch {
	case isProvider && b.ProviderID != in.ActorID:
		return nil, ErrNotFound
	case !isProvider && b.SubjectID != in.ActorID:
		return nil, ErrNotFound
	case !isProvider && in.Active != nil:
		return nil, ErrForbidden
	}

	fields := bookings.Fields{Active: in.Active}
	dateChanged := in.ScheduledAt != nil && !in.ScheduledAt.Equal(b.ScheduledAt)
	if dateChanged {
		if !in.ScheduledAt.After(s.clock.Now()) {
			return nil, ErrDatePassed
		}
		fields.ScheduledAt = in.ScheduledAt
	}
	if fields.Empty() {
		return b, nil
	}

	write := func(ctx context.Context) error {
		return s.repo.UpdateFields(ctx, bookings.Filter{ID: b.ID}, fields)
	}
	target := b.ScheduledAt
	if dateChanged {
		target = *in.ScheduledAt
	}
	if in.Active != nil && *in.Active && !b.Active {
		err = s.admission.Admit(ctx, admission.SiteAccept, b.ProviderID, target, write)
	} else {
		err = write(ctx)
	}
	if err != nil {
		return nil, err
	}

	if dateChanged {
		if err := s.invalidator.OnDateChanged(ctx, b.ID); err != nil {
			return nil, fmt.Errorf("appointments: clear reminders: %w", err)
		}
		b.ScheduledAt = in.ScheduledAt.UTC()
	}
	if in.Active != nil {
		b.Active = *in.Active
	}
	s.logger.Info("appointment updated", "booking_id", b.ID, "date_changed", dateChanged, "active", b.Active)
	return b, nil
}

// Delete cancels a booking and drops its reminder markers.
func (s *Service) Delete(ctx context.Context, id, actorID string, role accounts.Role) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !owns(b, actorID, role) {
		return ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.invalidator.OnDateChanged(ctx, id); err != nil {
		return fmt.Errorf("appointments: clear reminders: %w", err)
	}
	s.logger.Info("appointment deleted", "booking_id", id)
	return nil
}

// Get loads a booking visible to the actor.
func (s *Service) Get(ctx context.Context, id, actorID string, role accounts.Role) (*bookings.Booking, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	b, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(b, actorID, role) {
		return nil, ErrNotFound
	}
	return b, nil
}

// List pages through bookings matching filter.
func (s *Service) List(ctx context.Context, filter bookings.Filter, page Page) (*List, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	page = page.Normalize()
	order, err := bookings.ParseSort(page.Sort)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.Find(ctx, filter, order, (page.Page-1)*page.Limit, page.Limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []bookings.Booking{}
	}
	return &List{Items: items, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// ReminderStatus reports which reminder tiers are already marked for a
// booking visible to the actor.
func (s *Service) ReminderStatus(ctx context.Context, id, actorID string, role accounts.Role) (map[reminders.Tier]bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if _, err := s.Get(ctx, id, actorID, role); err != nil {
		return nil, err
	}
	if s.markers == nil {
		return map[reminders.Tier]bool{}, nil
	}
	return reminders.Status(ctx, s.markers, id)
}

func (s *Service) requireProvider(ctx context.Context, id string) error {
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return ErrProviderNotFound
		}
		return fmt.Errorf("appointments: load provider: %w", err)
	}
	if !acct.IsProvider() {
		return ErrProviderNotFound
	}
	return nil
}

func owns(b *bookings.Booking, actorID string, role accounts.Role) bool {
	if role == accounts.RoleProvider {
		return b.ProviderID == actorID
	}
	return b.SubjectID == actorID
}
