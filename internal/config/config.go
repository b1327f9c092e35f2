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
	PublicBaseURL string
	DatabaseURL   string

	// Google Calendar / Meet upstream
	GoogleCredentialsFile    string
	GoogleImpersonateSubject string
	AdminCalendarID          string
	CalendarSetupTimeout     time.Duration
	CalendarRetryMaxAttempts int
	CalendarRetryBaseDelay   time.Duration
	CalendarCacheTTL         time.Duration
	CalendarCacheBackend     string // "memory" or "redis"

	// Booking behaviour
	BookingBufferMinutes int
	DefaultTimezone      string
	WorkingHoursStart    string
	WorkingHoursEnd      string

	// Redis (optional, distributed directory cache)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AdminJWTSecret     string
	CORSAllowedOrigins []string

	// SendGrid Email Configuration
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		GoogleCredentialsFile:    getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleImpersonateSubject: getEnv("GOOGLE_IMPERSONATE_SUBJECT", ""),
		AdminCalendarID:          getEnv("ADMIN_CALENDAR_ID", ""),
		CalendarSetupTimeout:     getEnvAsDuration("CALENDAR_SETUP_TIMEOUT", 5*time.Second),
		CalendarRetryMaxAttempts: getEnvAsInt("CALENDAR_RETRY_MAX_ATTEMPTS", 3),
		CalendarRetryBaseDelay:   getEnvAsDuration("CALENDAR_RETRY_BASE_DELAY", 500*time.Millisecond),
		CalendarCacheTTL:         getEnvAsDuration("CALENDAR_CACHE_TTL", 5*time.Minute),
		CalendarCacheBackend:     strings.ToLower(strings.TrimSpace(getEnv("CALENDAR_CACHE_BACKEND", "memory"))),

		BookingBufferMinutes: getEnvAsInt("BOOKING_BUFFER_MINUTES", 10),
		DefaultTimezone:      getEnv("DEFAULT_TIMEZONE", "UTC"),
		WorkingHoursStart:    getEnv("WORKING_HOURS_START", "09:00"),
		WorkingHoursEnd:      getEnv("WORKING_HOURS_END", "17:00"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Wellspring Care"),
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
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
