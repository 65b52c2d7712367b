package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Scheduling service (availability + booking)
	SchedulingBaseURL    string
	SchedulingClientID   string
	ClientRefPrefix      string
	VisitType            string
	SearchWindowDays     int
	BookingTimeoutPeriod int

	// Payment backend and card processor
	PaymentsBaseURL      string
	StripePublishableKey string
	StripeAPIBaseURL     string
	AllowFakePayments    bool
	MaxConfirmAttempts   int
	ConfirmAttemptWindow time.Duration

	UpstreamTimeout time.Duration

	// Handoff store
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	HandoffTTL    time.Duration

	// Browser sessions
	SessionCookieName  string
	SessionIdleTimeout time.Duration

	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	// Confirmation e-mail
	EmailProvider     string
	EmailReplyTo      string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	SESFromName       string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Paid-booking archive; empty disables it
	ArchiveBucket string

	// Event outbox; empty DATABASE_URL disables it
	DatabaseURL        string
	EventsWebhookURL   string
	EventsQueueURL     string
	OutboxPollInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		SchedulingBaseURL:    strings.TrimRight(getEnv("SCHEDULING_BASE_URL", "http://localhost:3001"), "/"),
		SchedulingClientID:   getEnv("SCHEDULING_CLIENT_ID", ""),
		ClientRefPrefix:      getEnv("CLIENT_REF_PREFIX", "MHS"),
		VisitType:            getEnv("VISIT_TYPE", "Service"),
		SearchWindowDays:     getEnvAsInt("SEARCH_WINDOW_DAYS", 7),
		BookingTimeoutPeriod: getEnvAsInt("BOOKING_TIMEOUT_PERIOD", 500),

		PaymentsBaseURL:      strings.TrimRight(getEnv("PAYMENTS_BASE_URL", "http://localhost:3001"), "/"),
		StripePublishableKey: getEnv("STRIPE_PUBLISHABLE_KEY", ""),
		StripeAPIBaseURL:     getEnv("STRIPE_API_BASE_URL", ""),
		AllowFakePayments:    getEnvAsBool("ALLOW_FAKE_PAYMENTS", false),
		MaxConfirmAttempts:   getEnvAsInt("MAX_CONFIRM_ATTEMPTS", 5),
		ConfirmAttemptWindow: getEnvAsDuration("CONFIRM_ATTEMPT_WINDOW", time.Hour),

		UpstreamTimeout: getEnvAsDuration("UPSTREAM_TIMEOUT", 20*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		HandoffTTL:    getEnvAsDuration("HANDOFF_TTL", 12*time.Hour),

		SessionCookieName:  getEnv("SESSION_COOKIE_NAME", "booking_session"),
		SessionIdleTimeout: getEnvAsDuration("SESSION_IDLE_TIMEOUT", 2*time.Hour),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		EmailReplyTo:      getEnv("EMAIL_REPLY_TO", ""),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Home Visit Booking"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "Home Visit Booking"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		ArchiveBucket: getEnv("ARCHIVE_BUCKET", ""),

		DatabaseURL:        getEnv("DATABASE_URL", ""),
		EventsWebhookURL:   getEnv("EVENTS_WEBHOOK_URL", ""),
		EventsQueueURL:     getEnv("EVENTS_QUEUE_URL", ""),
		OutboxPollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 2*time.Second),
	}
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
