package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Delivery transports understood by bootstrap.BuildDeliverer.
const (
	TransportLog      = "log"
	TransportSendGrid = "sendgrid"
	TransportSES      = "ses"
	TransportSQS      = "sqs"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	JWTSecret          string
	DefaultLanguage    string
	MetricsEnabled     bool
	MetricsPort        string
	RateLimitPerMinute int
	CORSAllowedOrigins []string

	// Booking engine
	Timezone               string
	ProviderDailyCapacity  int
	ServiceDayBoundaryHour int
	AdmissionStrict        bool
	AdmissionLockTTL       time.Duration
	DependencyTimeout      time.Duration

	// Reminder sweeps
	DayAheadSweepPeriod   time.Duration
	HoursAheadSweepPeriod time.Duration
	HoursAheadProbeOffset time.Duration
	HoursAheadProbeWidth  time.Duration
	SweepPageSize         int
	SweepMaxPages         int
	ReminderClaimLease    time.Duration

	// Delivery
	DeliveryTransport string
	SendGridAPIKey    string
	EmailFromAddress  string
	EmailFromName     string
	ReminderQueueURL  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	hoursPeriod := getEnvAsDuration("HOURS_AHEAD_SWEEP_PERIOD", 5*time.Minute)
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		DefaultLanguage: strings.ToLower(getEnv("DEFAULT_LANGUAGE", "uk")),
		MetricsEnabled:  getEnvAsBool("METRICS_ENABLED", true),
		MetricsPort:     getEnv("METRICS_PORT", "9090"),

		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		Timezone:               getEnv("TIMEZONE", "Europe/Kyiv"),
		ProviderDailyCapacity:  getEnvAsInt("PROVIDER_DAILY_CAPACITY", 4),
		ServiceDayBoundaryHour: getEnvAsInt("SERVICE_DAY_BOUNDARY_HOUR", 2),
		AdmissionStrict:        getEnvAsBool("ADMISSION_STRICT", false),
		AdmissionLockTTL:       getEnvAsDuration("ADMISSION_LOCK_TTL", 10*time.Second),
		DependencyTimeout:      getEnvAsDuration("DEPENDENCY_TIMEOUT", 5*time.Second),

		DayAheadSweepPeriod:   getEnvAsDuration("DAY_AHEAD_SWEEP_PERIOD", time.Hour),
		HoursAheadSweepPeriod: hoursPeriod,
		HoursAheadProbeOffset: getEnvAsDuration("HOURS_AHEAD_PROBE_OFFSET", 4*time.Hour),
		HoursAheadProbeWidth:  getEnvAsDuration("HOURS_AHEAD_PROBE_WIDTH", hoursPeriod),
		SweepPageSize:         getEnvAsInt("SWEEP_PAGE_SIZE", 30),
		SweepMaxPages:         getEnvAsInt("SWEEP_MAX_PAGES", 10),
		ReminderClaimLease:    getEnvAsDuration("REMINDER_CLAIM_LEASE", 2*time.Minute),

		DeliveryTransport: strings.ToLower(strings.TrimSpace(getEnv("DELIVERY_TRANSPORT", TransportLog))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Clinic Reminders"),
		ReminderQueueURL:  getEnv("REMINDER_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "eu-central-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// Validate reports every setting the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ServiceDayBoundaryHour < 0 || c.ServiceDayBoundaryHour > 23 {
		errs = append(errs, fmt.Errorf("SERVICE_DAY_BOUNDARY_HOUR must be in [0,23], got %d", c.ServiceDayBoundaryHour))
	}
	if c.ProviderDailyCapacity <= 0 {
		errs = append(errs, fmt.Errorf("PROVIDER_DAILY_CAPACITY must be positive, got %d", c.ProviderDailyCapacity))
	}
	if c.SweepPageSize <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_PAGE_SIZE must be positive, got %d", c.SweepPageSize))
	}
	if c.SweepMaxPages <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_MAX_PAGES must be positive, got %d", c.SweepMaxPages))
	}
	if c.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative, got %d", c.RateLimitPerMinute))
	}
	if c.DayAheadSweepPeriod <= 0 || c.HoursAheadSweepPeriod <= 0 {
		errs = append(errs, errors.New("sweep periods must be positive"))
	}
	if c.HoursAheadProbeWidth < time.Minute {
		errs = append(errs, fmt.Errorf("HOURS_AHEAD_PROBE_WIDTH must be at least 1m, got %s", c.HoursAheadProbeWidth))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err))
	}
	switch c.DeliveryTransport {
	case TransportLog, TransportSendGrid, TransportSES, TransportSQS:
	default:
		errs = append(errs, fmt.Errorf("DELIVERY_TRANSPORT %q is not supported", c.DeliveryTransport))
	}
	return errors.Join(errs...)
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping blanks.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
