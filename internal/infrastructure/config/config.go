// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full service configuration
type Config struct {
	Environment string
	LogLevel    string

	Server         ServerConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Webhooks       WebhookConfig
	Auth           AuthConfig
	Telegram       TelegramConfig
	Email          EmailConfig
	Reconciliation ReconciliationConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port         int
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
}

// DatabaseConfig holds Postgres settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// WebhookConfig holds per-provider webhook settings
type WebhookConfig struct {
	// Secrets maps provider id -> HMAC signing secret
	Secrets map[string]string
	// AllowInsecure permits providers without a configured secret.
	// Development only; every request through that path logs at warn.
	AllowInsecure bool
	// RateLimitPerMinute caps deliveries per provider per minute
	RateLimitPerMinute int
	// HandlerTimeoutSeconds bounds one webhook request end to end
	HandlerTimeoutSeconds int
}

// AuthConfig holds JWT settings for the direct status-update endpoint
type AuthConfig struct {
	JWTSecret string
}

// TelegramConfig holds the Bot API token
type TelegramConfig struct {
	BotToken string
}

// EmailConfig holds outbound email settings
type EmailConfig struct {
	Provider  string // sendgrid, smtp
	APIKey    string
	FromEmail string
	FromName  string
	SMTPHost  string
	SMTPPort  int
}

// ReconciliationConfig controls the unmatched-event sweeper
type ReconciliationConfig struct {
	Enabled       bool
	Schedule      string // cron expression
	LookbackHours int
	BatchSize     int
}

// Load reads configuration from the environment (plus .env in dev)
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	v.SetDefault("REDIS_URL", "redis://localhost:6379/0")
	v.SetDefault("WEBHOOK_ALLOW_INSECURE", false)
	v.SetDefault("WEBHOOK_RATE_LIMIT_PER_MINUTE", 600)
	v.SetDefault("WEBHOOK_HANDLER_TIMEOUT_SECONDS", 20)
	v.SetDefault("EMAIL_PROVIDER", "sendgrid")
	v.SetDefault("EMAIL_FROM_NAME", "ClearRail")
	v.SetDefault("SMTP_PORT", 1025)
	v.SetDefault("RECONCILIATION_ENABLED", true)
	v.SetDefault("RECONCILIATION_SCHEDULE", "*/15 * * * *")
	v.SetDefault("RECONCILIATION_LOOKBACK_HOURS", 24)
	v.SetDefault("RECONCILIATION_BATCH_SIZE", 100)

	cfg := &Config{
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Server: ServerConfig{
			Port:         v.GetInt("SERVER_PORT"),
			ReadTimeout:  v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetInt("SERVER_WRITE_TIMEOUT"),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("DATABASE_URL"),
			MaxOpenConns: v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DATABASE_MAX_IDLE_CONNS"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		Webhooks: WebhookConfig{
			Secrets: map[string]string{
				"offramp": v.GetString("WEBHOOK_SECRET_OFFRAMP"),
				"onchain": v.GetString("WEBHOOK_SECRET_ONCHAIN"),
			},
			AllowInsecure:         v.GetBool("WEBHOOK_ALLOW_INSECURE"),
			RateLimitPerMinute:    v.GetInt("WEBHOOK_RATE_LIMIT_PER_MINUTE"),
			HandlerTimeoutSeconds: v.GetInt("WEBHOOK_HANDLER_TIMEOUT_SECONDS"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		Telegram: TelegramConfig{
			BotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		},
		Email: EmailConfig{
			Provider:  v.GetString("EMAIL_PROVIDER"),
			APIKey:    v.GetString("EMAIL_API_KEY"),
			FromEmail: v.GetString("EMAIL_FROM"),
			FromName:  v.GetString("EMAIL_FROM_NAME"),
			SMTPHost:  v.GetString("SMTP_HOST"),
			SMTPPort:  v.GetInt("SMTP_PORT"),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:       v.GetBool("RECONCILIATION_ENABLED"),
			Schedule:      v.GetString("RECONCILIATION_SCHEDULE"),
			LookbackHours: v.GetInt("RECONCILIATION_LOOKBACK_HOURS"),
			BatchSize:     v.GetInt("RECONCILIATION_BATCH_SIZE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces startup-time invariants. A missing webhook secret
// is a hard failure unless insecure mode is explicitly enabled.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if !c.Webhooks.AllowInsecure {
		for provider, secret := range c.Webhooks.Secrets {
			if secret == "" {
				return fmt.Errorf("webhook secret for provider %q is empty; set it or enable WEBHOOK_ALLOW_INSECURE for development", provider)
			}
		}
	}

	return nil
}
