package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	OTPSalt     string

	// OTP lifecycle constants. The defaults are part of the contract; the
	// env vars exist so deployments can tune them.
	OTPTTL         time.Duration
	ResendCooldown time.Duration
	MaxAttempts    int
	DevMode        bool

	SMS  SMSConfig
	SMTP SMTPConfig
}

// SMSConfig configures the SMS provider client
type SMSConfig struct {
	APIKey string
	Sender string
	DryRun bool
}

// SMTPConfig configures the email sender
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	DryRun   bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:           "8080",
		OTPTTL:         5 * time.Minute,
		ResendCooldown: 2 * time.Minute,
		MaxAttempts:    3,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg.OTPSalt = os.Getenv("OTP_SALT")
	if cfg.OTPSalt == "" {
		return nil, fmt.Errorf("OTP_SALT environment variable is required")
	}

	if v := os.Getenv("OTP_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid OTP_TTL %q: %w", v, err)
		}
		cfg.OTPTTL = d
	}
	if v := os.Getenv("RESEND_COOLDOWN"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RESEND_COOLDOWN %q: %w", v, err)
		}
		cfg.ResendCooldown = d
	}
	if v := os.Getenv("OTP_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid OTP_MAX_ATTEMPTS %q", v)
		}
		cfg.MaxAttempts = n
	}
	cfg.DevMode = os.Getenv("OTP_DEV_MODE") == "true"

	cfg.SMS = SMSConfig{
		APIKey: os.Getenv("SMS_API_KEY"),
		Sender: os.Getenv("SMS_SENDER"),
		DryRun: os.Getenv("SMS_DRY_RUN") == "true",
	}

	smtpPort := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q", v)
		}
		smtpPort = n
	}
	cfg.SMTP = SMTPConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     smtpPort,
		User:     os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
		DryRun:   os.Getenv("SMTP_DRY_RUN") == "true" || os.Getenv("SMTP_HOST") == "",
	}

	return cfg, nil
}
