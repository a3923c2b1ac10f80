package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	EventStore EventStoreConfig
	Auth       AuthConfig
	Providers  ProvidersConfig
	Logging    LoggingConfig
	Reminder   ReminderConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// RedisConfig holds the connection settings for the provider-status cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// EventStoreConfig holds configuration for the EventStoreDB event bus.
type EventStoreConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
	Enabled  bool
}

type AuthConfig struct {
	JWTSecret string
}

// ProvidersConfig holds the delivery provider endpoints and credentials.
type ProvidersConfig struct {
	MailBaseURL     string
	MailAPIKey      string
	WhatsAppBaseURL string
	WhatsAppAPIKey  string
	// WhatsAppRate is the maximum outbound messages per second.
	WhatsAppRate  float64
	WhatsAppBurst int
	// FormBaseURL is the public base URL for patient-facing form links.
	FormBaseURL string
}

type LoggingConfig struct {
	Level  string
	Format string
}

// ReminderConfig controls the appointment reminder scheduler.
type ReminderConfig struct {
	Enabled bool
	// CronSpec is a standard 5-field cron expression.
	CronSpec string
	// LeadHours is how far ahead of the appointment the reminder fires.
	LeadHours int
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "clinicore"),
			Password: getEnv("DB_PASSWORD", "clinicore"),
			Database: getEnv("DB_NAME", "clinicore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		EventStore: EventStoreConfig{
			Host:     getEnv("EVENTSTORE_HOST", "localhost"),
			Port:     getEnvInt("EVENTSTORE_PORT", 2113),
			Insecure: getEnvBool("EVENTSTORE_INSECURE", true),
			Username: getEnv("EVENTSTORE_USERNAME", ""),
			Password: getEnv("EVENTSTORE_PASSWORD", ""),
			Enabled:  getEnvBool("EVENTSTORE_ENABLED", true),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Providers: ProvidersConfig{
			MailBaseURL:     getEnv("MAIL_PROVIDER_URL", "http://localhost:9401"),
			MailAPIKey:      getEnv("MAIL_PROVIDER_API_KEY", ""),
			WhatsAppBaseURL: getEnv("WHATSAPP_PROVIDER_URL", "http://localhost:9402"),
			WhatsAppAPIKey:  getEnv("WHATSAPP_PROVIDER_API_KEY", ""),
			WhatsAppRate:    getEnvFloat("WHATSAPP_RATE_PER_SECOND", 10),
			WhatsAppBurst:   getEnvInt("WHATSAPP_RATE_BURST", 20),
			FormBaseURL:     getEnv("PUBLIC_FORM_BASE_URL", "https://forms.clinicore.app"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Reminder: ReminderConfig{
			Enabled:   getEnvBool("REMINDER_ENABLED", true),
			CronSpec:  getEnv("REMINDER_CRON", "*/15 * * * *"),
			LeadHours: getEnvInt("REMINDER_LEAD_HOURS", 24),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
