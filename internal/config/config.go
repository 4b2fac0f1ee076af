package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Dialogue
	SlotDurationMinutes int
	SessionTTL          time.Duration
	ClinicTimezone      string
	DefaultResourceID   string
	ServiceCatalog      []string
	// WorkingHours maps weekday names to "HH:MM-HH:MM" ranges, e.g.
	// "monday=08:00-18:00,tuesday=08:00-18:00". Missing days are closed.
	WorkingHours string

	// Loop guard
	RepetitionThreshold int
	EscalationThreshold int

	// Intent classification
	GeminiAPIKey  string
	GeminiModelID string

	// External calendar
	CalendarBaseURL      string
	CalendarAPIKey       string
	CalendarTimeout      time.Duration
	OutboxPollInterval   time.Duration
	OutboxBatchSize      int
	OutboxMaxAttempts    int
	OutboxRetryBaseDelay time.Duration

	// Operator notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	OperatorEmail     string

	// Operator API auth
	OperatorJWTSecret string

	// HTTP
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		SlotDurationMinutes: getEnvAsInt("SLOT_DURATION_MINUTES", 30),
		SessionTTL:          getEnvAsDuration("SESSION_TTL", 72*time.Hour),
		ClinicTimezone:      getEnv("CLINIC_TZ", "UTC"),
		DefaultResourceID:   getEnv("DEFAULT_RESOURCE_ID", "default"),
		ServiceCatalog:      getEnvAsSlice("SERVICE_CATALOG", nil),
		WorkingHours:        getEnv("WORKING_HOURS", "monday=08:00-18:00,tuesday=08:00-18:00,wednesday=08:00-18:00,thursday=08:00-18:00,friday=08:00-18:00"),

		RepetitionThreshold: getEnvAsInt("LOOP_REPETITION_THRESHOLD", 3),
		EscalationThreshold: getEnvAsInt("LOOP_ESCALATION_THRESHOLD", 3),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		CalendarBaseURL:      getEnv("CALENDAR_BASE_URL", ""),
		CalendarAPIKey:       getEnv("CALENDAR_API_KEY", ""),
		CalendarTimeout:      getEnvAsDuration("CALENDAR_TIMEOUT", 10*time.Second),
		OutboxPollInterval:   getEnvAsDuration("OUTBOX_POLL_INTERVAL", 30*time.Second),
		OutboxBatchSize:      getEnvAsInt("OUTBOX_BATCH_SIZE", 25),
		OutboxMaxAttempts:    getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 10),
		OutboxRetryBaseDelay: getEnvAsDuration("OUTBOX_RETRY_BASE_DELAY", time.Minute),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Clinic Assistant"),
		OperatorEmail:     getEnv("OPERATOR_EMAIL", ""),

		OperatorJWTSecret: getEnv("OPERATOR_JWT_SECRET", ""),

		RateLimitPerSecond: getEnvAsFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 10),
	}
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

// getEnvAsSlice retrieves a comma-separated environment variable as a slice
// or returns a default value.
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
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
