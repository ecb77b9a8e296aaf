// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Auth     AuthConfig
	Storage  StorageConfig
	Broker   BrokerConfig
	Mail     MailConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// DatabaseConfig holds connection settings. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
	Debug      bool
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev        bool
	Migrations bool
	LogLevel   string
	BaseURL    string
}

// AuthConfig holds the signing secret shared by session cookies and bearer tokens.
type AuthConfig struct {
	Secret          string
	ProfileCacheTTL time.Duration
	InvitationTTL   time.Duration
	ShareDefaultTTL time.Duration
	ShareMaximumTTL time.Duration
}

// StorageConfig holds the document blob store settings.
type StorageConfig struct {
	UploadDir     string
	MaxUploadSize int64
}

// BrokerConfig holds the RabbitMQ settings. Events are only logged when URL is empty.
type BrokerConfig struct {
	URL      string
	Exchange string
}

// MailConfig holds the SendGrid settings. Mails are printed to the log when APIKey is empty.
type MailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from a .env file, if present, and environment variables.
// Explicit environment variables win over .env values.
func Load() *Config {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads configuration from environment variables only.
// It uses sensible defaults for local development.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 15),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnvInt("DB_PORT", 5432),
			User:       getEnv("DB_USER", "vtc"),
			Password:   getEnv("DB_PASSWORD", "vtc123"),
			DBName:     getEnv("DB_NAME", "vtc"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "vtc.db"),
			Debug:      getEnvBool("DB_DEBUG", false),
		},
		App: AppConfig{
			Dev:        getEnvBool("DEV", true),
			Migrations: getEnvBool("MIGRATIONS", false),
			LogLevel:   strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
			BaseURL:    getEnv("APP_BASE_URL", "http://localhost:8080"),
		},
		Auth: AuthConfig{
			Secret:          getEnv("SESSION_SECRET", "devsessionsecret"),
			ProfileCacheTTL: time.Duration(getEnvInt("PROFILE_CACHE_TTL", 300)) * time.Second,
			InvitationTTL:   time.Duration(getEnvInt("INVITATION_TTL_HOURS", 7*24)) * time.Hour,
			ShareDefaultTTL: time.Duration(getEnvInt("SHARE_TTL_HOURS", 48)) * time.Hour,
			ShareMaximumTTL: time.Duration(getEnvInt("SHARE_MAX_TTL_HOURS", 30*24)) * time.Hour,
		},
		Storage: StorageConfig{
			UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
			MaxUploadSize: int64(getEnvInt("MAX_UPLOAD_MB", 10)) << 20,
		},
		Broker: BrokerConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "vtc_events"),
		},
		Mail: MailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("MAIL_FROM", "no-reply@vtc-exchange.local"),
			FromName:       getEnv("MAIL_FROM_NAME", "VTC Exchange"),
		},
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}
