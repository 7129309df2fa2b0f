// Package config loads service configuration from environment variables,
// with optional overrides from ~/.signup-api/config.json.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root configuration for the signup API.
type Config struct {
	Environment string         `mapstructure:"environment"`
	LogLevel    string         `mapstructure:"log_level"`
	Server      ServerConfig   `mapstructure:"server"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	OTP         OTPConfig      `mapstructure:"otp"`
	SMS         SMSConfig      `mapstructure:"sms"`
	SMTP        SMTPConfig     `mapstructure:"smtp"`
	Auth        AuthConfig     `mapstructure:"auth"`
	Sentry      SentryConfig   `mapstructure:"sentry"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
	ApplicationName string `mapstructure:"application_name"`
	ConnectTimeout  int    `mapstructure:"connect_timeout"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// OTPConfig tunes one-time passcode issuance.
type OTPConfig struct {
	ExpireMinutes int `mapstructure:"expire_minutes"`
	Length        int `mapstructure:"length"`
	// EchoCodes returns the generated code in API responses even when a
	// real provider delivered it. Never enable outside development.
	EchoCodes bool `mapstructure:"echo_codes"`
}

// SMSConfig selects and configures the SMS provider.
type SMSConfig struct {
	// Provider is "demo" or "twilio".
	Provider         string `mapstructure:"provider"`
	TwilioAccountSID string `mapstructure:"twilio_account_sid"`
	TwilioAuthToken  string `mapstructure:"twilio_auth_token"`
	TwilioFromNumber string `mapstructure:"twilio_from_number"`
}

// SMTPConfig selects and configures the email provider.
type SMTPConfig struct {
	// Provider is "demo" or "smtp".
	Provider    string `mapstructure:"provider"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
}

// AuthConfig holds token-signing settings.
type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"`
	TokenExpiryHours int    `mapstructure:"token_expiry_hours"`
}

// SentryConfig holds error-tracking settings.
type SentryConfig struct {
	Enabled          bool    `mapstructure:"enabled"`
	DSN              string  `mapstructure:"dsn"`
	TracesSampleRate float64 `mapstructure:"traces_sample_rate"`
}

// Load reads configuration from the environment, applying defaults and an
// optional ~/.signup-api/config.json. Environment variables take precedence
// over the file.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if homeDir, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(homeDir, ".signup-api", "config.json"))
		v.SetConfigType("json")
		// A missing file is fine; a malformed one is not.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvAliases(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "change-me-in-production")
	v.SetDefault("database.dbname", "signup")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")
	v.SetDefault("database.application_name", "signup-api")
	v.SetDefault("database.connect_timeout", 10)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("otp.expire_minutes", 5)
	v.SetDefault("otp.length", 6)
	v.SetDefault("otp.echo_codes", false)

	v.SetDefault("sms.provider", "demo")
	v.SetDefault("sms.twilio_account_sid", "")
	v.SetDefault("sms.twilio_auth_token", "")
	v.SetDefault("sms.twilio_from_number", "")

	v.SetDefault("smtp.provider", "demo")
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from_address", "")
	v.SetDefault("smtp.from_name", "Copy Trading Platform")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_expiry_hours", 24)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.traces_sample_rate", 0.1)
}

// bindEnvAliases maps legacy flat variable names onto nested keys so the
// deployment environment keeps working across renames.
func bindEnvAliases(v *viper.Viper) {
	aliases := map[string][]string{
		"environment":            {"ENVIRONMENT"},
		"log_level":              {"LOG_LEVEL"},
		"server.port":            {"SERVER_PORT"},
		"database.driver":        {"DATABASE_DRIVER"},
		"database.host":          {"DATABASE_HOST"},
		"database.port":          {"DATABASE_PORT"},
		"database.user":          {"DATABASE_USER"},
		"database.password":      {"DATABASE_PASSWORD"},
		"database.dbname":        {"DATABASE_DBNAME"},
		"database.sslmode":       {"DATABASE_SSLMODE"},
		"database.database_url":  {"DATABASE_URL"},
		"redis.host":             {"REDIS_HOST"},
		"redis.port":             {"REDIS_PORT"},
		"redis.password":         {"REDIS_PASSWORD"},
		"redis.db":               {"REDIS_DB"},
		"otp.expire_minutes":     {"OTP_EXPIRE_MINUTES"},
		"otp.length":             {"OTP_LENGTH"},
		"otp.echo_codes":         {"OTP_ECHO_CODES"},
		"sms.provider":           {"SMS_PROVIDER"},
		"sms.twilio_account_sid": {"TWILIO_ACCOUNT_SID"},
		"sms.twilio_auth_token":  {"TWILIO_AUTH_TOKEN"},
		"sms.twilio_from_number": {"TWILIO_FROM_NUMBER"},
		"smtp.provider":          {"EMAIL_PROVIDER"},
		"smtp.host":              {"SMTP_SERVER", "SMTP_HOST"},
		"smtp.port":              {"SMTP_PORT"},
		"smtp.username":          {"SMTP_USERNAME"},
		"smtp.password":          {"SMTP_PASSWORD"},
		"smtp.from_address":      {"SMTP_FROM_ADDRESS"},
		"smtp.from_name":         {"SMTP_FROM_NAME"},
		"auth.jwt_secret":        {"AUTH_JWT_SECRET", "JWT_SECRET"},
		"auth.token_expiry_hours": {"AUTH_TOKEN_EXPIRY_HOURS"},
		"sentry.enabled":         {"SENTRY_ENABLED"},
		"sentry.dsn":             {"SENTRY_DSN"},
	}

	for key, envs := range aliases {
		args := append([]string{key}, envs...)
		_ = v.BindEnv(args...)
	}
}

func validate(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch driver {
	case "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver must be one of postgres, postgresql; got %q", cfg.Database.Driver)
	}

	if cfg.OTP.Length < 4 || cfg.OTP.Length > 10 {
		return fmt.Errorf("otp.length must be between 4 and 10; got %d", cfg.OTP.Length)
	}
	if cfg.OTP.ExpireMinutes <= 0 {
		return fmt.Errorf("otp.expire_minutes must be positive; got %d", cfg.OTP.ExpireMinutes)
	}

	switch cfg.SMS.Provider {
	case "demo":
	case "twilio":
		if cfg.SMS.TwilioAccountSID == "" || cfg.SMS.TwilioAuthToken == "" || cfg.SMS.TwilioFromNumber == "" {
			return fmt.Errorf("sms.provider is twilio but twilio credentials are incomplete")
		}
	default:
		return fmt.Errorf("sms.provider must be one of demo, twilio; got %q", cfg.SMS.Provider)
	}

	switch cfg.SMTP.Provider {
	case "demo":
	case "smtp":
		if cfg.SMTP.Host == "" || cfg.SMTP.FromAddress == "" {
			return fmt.Errorf("smtp.provider is smtp but smtp.host or smtp.from_address is missing")
		}
	default:
		return fmt.Errorf("smtp.provider must be one of demo, smtp; got %q", cfg.SMTP.Provider)
	}

	if cfg.Environment == "production" && len(cfg.Auth.JWTSecret) < 32 {
		return fmt.Errorf("auth.jwt_secret must be at least 32 characters in production")
	}

	return nil
}
