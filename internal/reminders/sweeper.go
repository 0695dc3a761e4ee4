package reminders

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/booking-reminders/internal/accounts"
	"github.com/wolfman30/booking-reminders/internal/bookings"
	"github.com/wolfman30/booking-reminders/internal/clock"
	"github.com/wolfman30/booking-reminders/internal/i18n"
	"github.com/wolfman30/booking-reminders/internal/notify"
	"github.com/wolfman30/booking-reminders/internal/observability/metrics"
	"github.com/wolfman30/booking-reminders/internal/serviceday"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

var tracer = otel.Tracer("bookings.internal.reminders")

// Finder is the slice of the booking repository the sweeps read from.
type Finder interface {
	Find(ctx context.Context, filter bookings.Filter, sort bookings.Sort, offset, limit int) ([]bookings.Booking, error)
}

// Config tunes both sweeps.
type Config struct {
	DayAheadPeriod   time.Duration
	HoursAheadPeriod time.Duration
	// ProbeOffset is how far ahead of now the hours-ahead probe starts.
	ProbeOffset time.Duration
	// ProbeWidth is the length of the hours-ahead probe. It should be at
	// least HoursAheadPeriod or bookings fall between ticks.
	ProbeWidth        time.Duration
	PageSize          int
	MaxPages          int
	ClaimLease        time.Duration
	DependencyTimeout time.Duration
}

// DefaultConfig mirrors the production schedule: hourly day-ahead sweeps and
// five-minute hours-ahead sweeps probing four hours out.
func DefaultConfig() Config {
	return Config{
		DayAheadPeriod:    time.Hour,
		HoursAheadPeriod:  5 * time.Minute,
		ProbeOffset:       4 * time.Hour,
		ProbeWidth:        5 * time.Minute,
		PageSize:          30,
		MaxPages:          10,
		ClaimLease:        2 * time.Minute,
		DependencyTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DayAheadPeriod <= 0 {
		c.DayAheadPeriod = d.DayAheadPeriod
	}
	if c.HoursAheadPeriod <= 0 {
		c.HoursAheadPeriod = d.HoursAheadPeriod
	}
	if c.ProbeOffset <= 0 {
		c.ProbeOffset = d.ProbeOffset
	}
	if c.ProbeWidth <= 0 {
		c.ProbeWidth = c.HoursAheadPeriod
	}
	if c.PageSize <= 0 {
		c.PageSize = d.PageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = d.MaxPages
	}
	if c.ClaimLease <= 0 {
		c.ClaimLease = d.ClaimLease
	}
	if c.DependencyTimeout <= 0 {
		c.DependencyTimeout = d.DependencyTimeout
	}
	return c
}

// Result summarises one sweep tick.
type Result struct {
	Tier      Tier
	Window    serviceday.Window
	Scanned   int
	Delivered int
	Skipped   int
	Failed    int
}

// Deps are the collaborators a Sweeper needs. Recorder and Metrics are optional.
type Deps struct {
	Bookings   Finder
	Accounts   accounts.Directory
	Cache      DedupCache
	Deliverer  notify.Deliverer
	Translator *i18n.Translator
	Clock      clock.Clock
	Days       *serviceday.Calculator
	Recorder   notify.Recorder
	Metrics    *metrics.ReminderMetrics
	Logger     *logging.Logger
}

// Sweeper finds active bookings inside each tier's window and reminds their
// subjects once per tier.
type Sweeper struct {
	deps   Deps
	cfg    Config
	logger *logging.Logger

	mu sync.Mutex
	// probeFrom is the earliest instant no completed hours-ahead probe covered.
	probeFrom time.Time
}

func NewSweeper(deps Deps, cfg Config) *Sweeper {
	switch {
	case deps.Bookings == nil:
		panic("reminders: bookings finder required")
	case deps.Accounts == nil:
		panic("reminders: account directory required")
	case deps.Cache == nil:
		panic("reminders: dedup cache required")
	case deps.Deliverer == nil:
		panic("reminders: deliverer required")
	case deps.Translator == nil:
		panic("reminders: translator required")
	case deps.Clock == nil:
		panic("reminders: clock required")
	case deps.Days == nil:
		panic("reminders: service day calculator required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{deps: deps, cfg: cfg.withDefaults(), logger: logger.With("component", "reminders")}
}

// Config returns the effective configuration.
func (s *Sweeper) Config() Config { return s.cfg }

// DayAheadWindow is the service day starting roughly 24 hours after now.
func (s *Sweeper) DayAheadWindow(now time.Time) serviceday.Window {
	return s.deps.Days.Tomorrow(now)
}

// HoursAheadWindow is the probe starting at now+ProbeOffset, truncated to
// the minute, ProbeWidth long, inclusive on both ends.
func (s *Sweeper) HoursAheadWindow(now time.Time) serviceday.Window {
	start := now.Add(s.cfg.ProbeOffset).Truncate(time.Minute)
	return serviceday.Window{Min: start, Max: start.Add(s.cfg.ProbeWidth - time.Millisecond)}
}

// SweepDayAhead runs one day-ahead tick.
func (s *Sweeper) SweepDayAhead(ctx context.Context) (Result, error) {
	return s.sweep(ctx, TierDayAhead, s.DayAheadWindow(s.deps.Clock.Now()))
}

// SweepHoursAhead runs one hours-ahead tick. The probe is stretched back to
// the first instant no completed probe has covered, so late, skipped or
// failed ticks leave no unprobed minutes.
func (s *Sweeper) SweepHoursAhead(ctx context.Context) (Result, error) {
	now := s.deps.Clock.Now()
	window := s.HoursAheadWindow(now)

	s.mu.Lock()
	if from := s.probeFrom; !from.IsZero() && from.Before(window.Min) {
		if from.Before(now) {
			from = now
		}
		window.Min = from
	}
	s.mu.Unlock()

	res, err := s.sweep(ctx, TierHoursAhead, window)

	s.mu.Lock()
	if err != nil {
		s.probeFrom = window.Min
	} else if next := window.Max.Add(time.Millisecond); next.After(s.probeFrom) {
		s.probeFrom = next
	}
	s.mu.Unlock()
	return res, err
}

// Run drives both sweeps from independent tickers until ctx is done. Each
// sweep runs once immediately.
func (s *Sweeper) Run(ctx context.Context) {
	done := make(chan struct{}, 2)
	go func() {
		s.loop(ctx, s.cfg.DayAheadPeriod, s.SweepDayAhead)
		done <- struct{}{}
	}()
	go func() {
		s.loop(ctx, s.cfg.HoursAheadPeriod, s.SweepHoursAhead)
		done <- struct{}{}
	}()
	<-done
	<-done
}

func (s *Sweeper) loop(ctx context.Context, every time.Duration, tick func(context.Context) (Result, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	s.drain(ctx, tick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drain(ctx, tick)
		}
	}
}

func (s *Sweeper) drain(ctx context.Context, tick func(context.Context) (Result, error)) {
	res, err := tick(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Error("reminder sweep failed", "tier", res.Tier, "error", err)
		return
	}
	if res.Scanned == 0 {
		return
	}
	s.logger.Info("reminder sweep finished",
		"tier", res.Tier,
		"window_min", res.Window.Min,
		"window_max", res.Window.Max,
		"scanned", res.Scanned,
		"delivered", res.Delivered,
		"skipped", res.Skipped,
		"failed", res.Failed,
	)
}

type outcome string

const (
	outcomeDelivered outcome = "delivered"
	outcomeSkipped   outcome = "skipped"
	outcomeFailed    outcome = "failed"
)

func (s *Sweeper) sweep(ctx context.Context, tier Tier, window serviceday.Window) (Result, error) {
	ctx, span := tracer.Start(ctx, "reminders.sweep")
	defer span.End()
	span.SetAttributes(
		attribute.String("bookings.reminders.tier", string(tier)),
		attribute.String("bookings.reminders.window_min", window.Min.UTC().Format(time.RFC3339)),
	)

	started := time.Now()
	res := Result{Tier: tier, Window: window}
	status := "ok"
	defer func() {
		s.deps.Metrics.ObserveSweep(string(tier), status, res.Scanned, time.Since(started).Seconds())
		span.SetAttributes(
			attribute.Int("bookings.reminders.scanned", res.Scanned),
			attribute.Int("bookings.reminders.delivered", res.Delivered),
			attribute.Int("bookings.reminders.failed", res.Failed),
		)
	}()

	active := true
	filter := bookings.Filter{Active: &active, MinDate: &window.Min, MaxDate: &window.Max}
	order := bookings.Sort{Field: bookings.SortScheduledAt}

	for page := 0; page < s.cfg.MaxPages; page++ {
		var items []bookings.Booking
		err := s.call(ctx, func(ctx context.Context) error {
			var err error
			items, err = s.deps.Bookings.Find(ctx, filter, order, page*s.cfg.PageSize, s.cfg.PageSize)
			return err
		})
		if err != nil {
			status = "error"
			span.RecordError(err)
			return res, fmt.Errorf("reminders: find %s bookings: %w", tier, err)
		}

		delivered := 0
		for _, b := range items {
			if ctx.Err() != nil {
				status = "error"
				return res, ctx.Err()
			}
			res.Scanned++
			switch s.remind(ctx, tier, b) {
			case outcomeDelivered:
				res.Delivered++
				delivered++
			case outcomeSkipped:
				res.Skipped++
			default:
				res.Failed++
			}
		}

		// Later pages are only read while this one delivered nothing. Failures
		// do not stop the scan, or a page of them would starve the rest.
		if delivered > 0 || len(items) < s.cfg.PageSize {
			break
		}
	}
	return res, nil
}

// remind handles one booking. Failures are logged and leave no marker so
// the next tick retries.
func (s *Sweeper) remind(ctx context.Context, tier Tier, b bookings.Booking) outcome {
	key := Key(tier, b.ID)
	log := s.logger.With("tier", tier, "booking_id", b.ID)

	var claimed bool
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		claimed, err = s.deps.Cache.Claim(ctx, key, s.cfg.ClaimLease)
		return err
	})
	if err != nil {
		log.Error("reminder claim failed", "error", err)
		return s.observe(tier, outcomeFailed)
	}
	if !claimed {
		return s.observe(tier, outcomeSkipped)
	}

	msg, err := s.render(ctx, tier, b)
	if err == nil {
		err = s.call(ctx, func(ctx context.Context) error {
			return s.deps.Deliverer.Deliver(ctx, msg)
		})
	}
	if err != nil {
		log.Error("reminder delivery failed", "subject_id", b.SubjectID, "error", err)
		s.release(ctx, key, log)
		return s.observe(tier, outcomeFailed)
	}

	now := s.deps.Clock.Now()
	var confirmed bool
	if err := s.call(ctx, func(ctx context.Context) error {
		var err error
		confirmed, err = s.deps.Cache.Confirm(ctx, key, s.markerTTL(tier, b.ScheduledAt, now))
		return err
	}); err != nil {
		// The claim still covers the lease; past that a duplicate is possible.
		log.Error("reminder marker write failed", "error", err)
	} else if !confirmed {
		// Rescheduled or deleted mid-delivery; the new date gets its own reminder.
		log.Info("reminder claim invalidated during delivery")
	}

	if s.deps.Recorder != nil {
		if err := s.call(ctx, func(ctx context.Context) error {
			return s.deps.Recorder.Record(ctx, notify.Delivery{
				BookingID:   b.ID,
				Tier:        string(tier),
				Channel:     s.deps.Deliverer.Channel(),
				RecipientID: b.SubjectID,
				DeliveredAt: now.UTC(),
			})
		}); err != nil {
			log.Warn("reminder audit record failed", "error", err)
		}
	}
	return s.observe(tier, outcomeDelivered)
}

func (s *Sweeper) render(ctx context.Context, tier Tier, b bookings.Booking) (notify.Message, error) {
	var subject *accounts.Account
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		subject, err = s.deps.Accounts.Get(ctx, b.SubjectID)
		return err
	})
	if err != nil {
		return notify.Message{}, fmt.Errorf("reminders: load subject %s: %w", b.SubjectID, err)
	}

	providerName := ""
	err = s.call(ctx, func(ctx context.Context) error {
		provider, err := s.deps.Accounts.Get(ctx, b.ProviderID)
		if err == nil {
			providerName = provider.Name
		}
		return err
	})
	if err != nil && !errors.Is(err, accounts.ErrNotFound) {
		return notify.Message{}, fmt.Errorf("reminders: load provider %s: %w", b.ProviderID, err)
	}

	loc := s.deps.Days.Location()
	lang := s.deps.Translator.Resolve(subject.Lang)
	args := i18n.Args{
		"name":        subject.Name,
		"provider":    providerName,
		"date":        b.ScheduledAt.In(loc).Format("15:04"),
		"currentDate": s.deps.Clock.Now().In(loc).Format(serviceday.DateLayout),
	}
	return notify.Message{
		BookingID: b.ID,
		Tier:      string(tier),
		To: notify.Recipient{
			ID:    subject.ID,
			Name:  subject.Name,
			Email: subject.Email,
			Phone: subject.Phone,
			Lang:  lang,
		},
		Subject:     s.deps.Translator.Translate(i18n.KeyRemindSubject, lang, nil),
		Body:        s.deps.Translator.Translate(messageKey(tier), lang, args),
		ScheduledAt: b.ScheduledAt,
	}, nil
}

func (s *Sweeper) release(ctx context.Context, key string, log *logging.Logger) {
	// Release even when the tick's context is gone so the next tick can retry.
	if err := s.call(context.WithoutCancel(ctx), func(ctx context.Context) error {
		return s.deps.Cache.Delete(ctx, key)
	}); err != nil {
		log.Warn("reminder claim release failed", "error", err)
	}
}

// markerTTL keeps day-ahead markers forever and hours-ahead markers until
// the appointment starts. A booking already at or past its start still gets
// a short marker so the next probe does not resend.
func (s *Sweeper) markerTTL(tier Tier, scheduledAt, now time.Time) time.Duration {
	if tier == TierDayAhead {
		return 0
	}
	ttl := scheduledAt.Sub(now).Truncate(time.Second)
	if ttl > 0 {
		return ttl
	}
	floor := s.cfg.ProbeWidth
	if floor < time.Minute {
		floor = time.Minute
	}
	return floor
}

func (s *Sweeper) observe(tier Tier, o outcome) outcome {
	s.deps.Metrics.ObserveOutcome(string(tier), string(o))
	return o
}

func (s *Sweeper) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DependencyTimeout)
	defer cancel()
	return fn(ctx)
}

func messageKey(tier Tier) string {
	if tier == TierHoursAhead {
		return i18n.KeyRemindHoursAhead
	}
	return i18n.KeyRemindDayAhead
}
