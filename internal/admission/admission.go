// Package admission enforces the per-provider daily capacity on active bookings.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-reminders/internal/bookings"
	"github.com/wolfman30/booking-reminders/internal/observability/metrics"
	"github.com/wolfman30/booking-reminders/internal/serviceday"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

var tracer = otel.Tracer("bookings.internal.admission")

// ErrAdmissionDenied is wrapped by every *DeniedError.
var ErrAdmissionDenied = errors.New("admission: provider at daily capacity")

// Site names the call path asking for admission.
type Site string

const (
	SiteCreate Site = "create"
	SiteAccept Site = "accept"
)

// DeniedError carries the service day that is already full.
type DeniedError struct {
	Site       Site
	ProviderID string
	Window     serviceday.Window
	// Date is the service day formatted DD.MM.YY for user-facing messages.
	Date string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("admission: provider %s at capacity on %s", e.ProviderID, e.Date)
}

func (e *DeniedError) Unwrap() error { return ErrAdmissionDenied }

// Counter is the slice of the booking repository admission needs.
type Counter interface {
	Count(ctx context.Context, filter bookings.Filter) (int, error)
}

// Locker serialises admission for one provider and service day.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Controller decides whether a provider can take one more active booking on
// a service day. Without a Locker the count-then-write sequence is not
// atomic and two concurrent admissions may both pass.
type Controller struct {
	counter  Counter
	days     *serviceday.Calculator
	capacity int
	locker   Locker
	metrics  *metrics.AdmissionMetrics
	logger   *logging.Logger
	timeout  time.Duration
}

// DefaultTimeout bounds the count query and the lock acquisition.
const DefaultTimeout = 5 * time.Second

// Option customises a Controller.
type Option func(*Controller)

// WithLocker enables strict admission.
func WithLocker(l Locker) Option {
	return func(c *Controller) { c.locker = l }
}

func WithMetrics(m *metrics.AdmissionMetrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithTimeout bounds each dependency call. Zero or less keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController builds a controller admitting at most capacity active
// bookings per provider and service day.
func NewController(counter Counter, days *serviceday.Calculator, capacity int, opts ...Option) *Controller {
	if counter == nil {
		panic("admission: counter required")
	}
	if days == nil {
		panic("admission: service day calculator required")
	}
	c := &Controller{
		counter:  counter,
		days:     days,
		capacity: capacity,
		logger:   logging.Default(),
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capacity returns the configured daily limit.
func (c *Controller) Capacity() int { return c.capacity }

// TryAdmit returns nil when the provider still has room on target's service
// day and a *DeniedError when the active count has reached capacity.
func (c *Controller) TryAdmit(ctx context.Context, site Site, providerID string, target time.Time) error {
	ctx, span := tracer.Start(ctx, "admission.try_admit")
	defer span.End()

	window := c.days.For(target)
	span.SetAttributes(
		attribute.String("bookings.admission.site", string(site)),
		attribute.String("bookings.provider_id", providerID),
		attribute.String("bookings.service_day", window.Date()),
	)

	active := true
	countCtx, cancel := context.WithTimeout(ctx, c.timeout)
	count, err := c.counter.Count(countCtx, bookings.Filter{
		ProviderID: providerID,
		Active:     &active,
		MinDate:    &window.Min,
		MaxDate:    &window.Max,
	})
	cancel()
	if err != nil {
		span.RecordError(err)
		c.metrics.ObserveDecision(string(site), "error")
		return fmt.Errorf("admission: count active bookings: %w", err)
	}
	span.SetAttributes(attribute.Int("bookings.admission.active_count", count))

	if count >= c.capacity {
		c.metrics.ObserveDecision(string(site), "denied")
		c.logger.Info("admission denied",
			"site", site,
			"provider_id", providerID,
			"service_day", window.Date(),
			"active", count,
			"capacity", c.capacity,
		)
		return &DeniedError{Site: site, ProviderID: providerID, Window: window, Date: window.Date()}
	}
	c.metrics.ObserveDecision(string(site), "admitted")
	return nil
}

// Admit runs TryAdmit and, when admitted, commit. With a Locker configured
// both steps happen while holding the provider's service-day lock.
func (c *Controller) Admit(ctx context.Context, site Site, providerID string, target time.Time, commit func(context.Context) error) error {
	if c.locker != nil {
		lockCtx, cancel := context.WithTimeout(ctx, c.timeout)
		release, err := c.locker.Acquire(lockCtx, LockKey(providerID, c.days.For(target)))
		cancel()
		if err != nil {
			c.metrics.ObserveDecision(string(site), "error")
			return fmt.Errorf("admission: acquire lock: %w", err)
		}
		defer release()
	}
	if err := c.TryAdmit(ctx, site, providerID, target); err != nil {
		return err
	}
	if commit == nil {
		return nil
	}
	return commit(ctx)
}

// LockKey identifies one provider's service day.
func LockKey(providerID string, window serviceday.Window) string {
	return fmt.Sprintf("admission:%s:%s", providerID, window.Min.Format("2006-01-02"))
}
