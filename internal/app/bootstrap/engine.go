package bootstrap

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/booking-reminders/internal/accounts"
	"github.com/wolfman30/booking-reminders/internal/admission"
	"github.com/wolfman30/booking-reminders/internal/appointments"
	"github.com/wolfman30/booking-reminders/internal/bookings"
	"github.com/wolfman30/booking-reminders/internal/clock"
	appconfig "github.com/wolfman30/booking-reminders/internal/config"
	"github.com/wolfman30/booking-reminders/internal/i18n"
	"github.com/wolfman30/booking-reminders/internal/notify"
	"github.com/wolfman30/booking-reminders/internal/observability/metrics"
	"github.com/wolfman30/booking-reminders/internal/reminders"
	"github.com/wolfman30/booking-reminders/internal/serviceday"
	"github.com/wolfman30/booking-reminders/pkg/logging"
)

// Engine bundles the pieces the API and the reminder worker share.
type Engine struct {
	Bookings   bookings.Repository
	Accounts   accounts.Directory
	Clock      *clock.Service
	Days       *serviceday.Calculator
	Markers    *reminders.RedisCache
	Translator *i18n.Translator
}

// BuildEngine resolves the timezone, service-day rule and translations.
func BuildEngine(cfg *appconfig.Config, repo bookings.Repository, dir accounts.Directory, redisClient redis.UniversalClient) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if redisClient == nil {
		return nil, fmt.Errorf("bootstrap: redis is required for reminder markers")
	}
	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	translator, err := i18n.New(cfg.DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return &Engine{
		Bookings:   repo,
		Accounts:   dir,
		Clock:      clk,
		Days:       serviceday.NewCalculator(cfg.ServiceDayBoundaryHour, clk.Location()),
		Markers:    reminders.NewRedisCache(redisClient),
		Translator: translator,
	}, nil
}

// BuildAppointmentService wires admission control in front of the booking store.
// ADMISSION_STRICT serialises count-then-commit per provider day through Redis.
func BuildAppointmentService(cfg *appconfig.Config, e *Engine, redisClient redis.UniversalClient, reg prometheus.Registerer, logger *logging.Logger) *appointments.Service {
	if logger == nil {
		logger = logging.Default()
	}
	opts := []admission.Option{admission.WithLogger(logger), admission.WithTimeout(cfg.DependencyTimeout)}
	if reg != nil {
		opts = append(opts, admission.WithMetrics(metrics.NewAdmissionMetrics(reg)))
	}
	if cfg.AdmissionStrict && redisClient != nil {
		opts = append(opts, admission.WithLocker(admission.NewRedisLocker(redisClient, cfg.AdmissionLockTTL, cfg.DependencyTimeout, logger)))
		logger.Info("strict admission enabled", "lock_ttl", cfg.AdmissionLockTTL)
	}
	ctrl := admission.NewController(e.Bookings, e.Days, cfg.ProviderDailyCapacity, opts...)
	return appointments.NewService(e.Bookings, e.Accounts, ctrl, reminders.NewInvalidator(e.Markers, logger), e.Markers, e.Clock, logger,
		appointments.WithTimeout(cfg.DependencyTimeout))
}

// BuildSweeper wires the two reminder tiers. recorder may be nil.
func BuildSweeper(cfg *appconfig.Config, e *Engine, deliverer notify.Deliverer, recorder notify.Recorder, reg prometheus.Registerer, logger *logging.Logger) *reminders.Sweeper {
	var m *metrics.ReminderMetrics
	if reg != nil {
		m = metrics.NewReminderMetrics(reg)
	}
	return reminders.NewSweeper(reminders.Deps{
		Bookings:   e.Bookings,
		Accounts:   e.Accounts,
		Cache:      e.Markers,
		Deliverer:  deliverer,
		Translator: e.Translator,
		Clock:      e.Clock,
		Days:       e.Days,
		Recorder:   recorder,
		Metrics:    m,
		Logger:     logger,
	}, reminders.Config{
		DayAheadPeriod:    cfg.DayAheadSweepPeriod,
		HoursAheadPeriod:  cfg.HoursAheadSweepPeriod,
		ProbeOffset:       cfg.HoursAheadProbeOffset,
		ProbeWidth:        cfg.HoursAheadProbeWidth,
		PageSize:          cfg.SweepPageSize,
		MaxPages:          cfg.SweepMaxPages,
		ClaimLease:        cfg.ReminderClaimLease,
		DependencyTimeout: cfg.DependencyTimeout,
	})
}
