package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// AppConfig holds every setting the API reads at start-up.
type AppConfig struct {
	AppPort     string `mapstructure:"APP_PORT"`
	Env         string `mapstructure:"ENV"`
	DBDriver    string `mapstructure:"DB_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	JWTSecret   string `mapstructure:"JWT_SECRET"`

	Timezone     string `mapstructure:"TIMEZONE"`
	CheckInHour  int    `mapstructure:"CHECK_IN_HOUR"`
	CheckOutHour int    `mapstructure:"CHECK_OUT_HOUR"`

	PaymentSessionTTL    time.Duration `mapstructure:"PAYMENT_SESSION_TTL"`
	AutoMatchGrace       time.Duration `mapstructure:"AUTO_MATCH_GRACE"`
	MatchAmountTolerance int64         `mapstructure:"MATCH_AMOUNT_TOLERANCE"`
	ReferenceSecret      string        `mapstructure:"REFERENCE_SECRET"`
	BankWebhookSecret    string        `mapstructure:"BANK_WEBHOOK_SECRET"`

	// Receiving account printed on every QR code.
	BankID          string `mapstructure:"BANK_ID"`
	BankAccountNo   string `mapstructure:"BANK_ACCOUNT_NO"`
	BankAccountName string `mapstructure:"BANK_ACCOUNT_NAME"`

	VietQRAPIURL   string `mapstructure:"VIETQR_API_URL"`
	VietQRClientID string `mapstructure:"VIETQR_CLIENT_ID"`
	VietQRAPIKey   string `mapstructure:"VIETQR_API_KEY"`
	VietQRTemplate string `mapstructure:"VIETQR_TEMPLATE"`

	PayoutAPIURL       string `mapstructure:"PAYOUT_API_URL"`
	PayoutClientID     string `mapstructure:"PAYOUT_CLIENT_ID"`
	PayoutClientSecret string `mapstructure:"PAYOUT_CLIENT_SECRET"`
	PayoutMaxAttempts  int    `mapstructure:"PAYOUT_MAX_ATTEMPTS"`
	PayoutCron         string `mapstructure:"PAYOUT_CRON"`

	BrevoAPIKey     string `mapstructure:"BREVO_API_KEY"`
	EmailSender     string `mapstructure:"EMAIL_SENDER"`
	EmailSenderName string `mapstructure:"EMAIL_SENDER_NAME"`

	StatusPollPerMinute  int `mapstructure:"STATUS_POLL_PER_MINUTE"`
	BankWebhookPerMinute int `mapstructure:"BANK_WEBHOOK_PER_MINUTE"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_SECRET", "")

	v.SetDefault("TIMEZONE", "Asia/Ho_Chi_Minh")
	v.SetDefault("CHECK_IN_HOUR", 14)
	v.SetDefault("CHECK_OUT_HOUR", 12)

	v.SetDefault("PAYMENT_SESSION_TTL", 15*time.Minute)
	v.SetDefault("AUTO_MATCH_GRACE", 24*time.Hour)
	v.SetDefault("MATCH_AMOUNT_TOLERANCE", 10000)
	v.SetDefault("REFERENCE_SECRET", "")
	v.SetDefault("BANK_WEBHOOK_SECRET", "")

	v.SetDefault("BANK_ID", "")
	v.SetDefault("BANK_ACCOUNT_NO", "")
	v.SetDefault("BANK_ACCOUNT_NAME", "")

	v.SetDefault("VIETQR_API_URL", "https://api.vietqr.io")
	v.SetDefault("VIETQR_CLIENT_ID", "")
	v.SetDefault("VIETQR_API_KEY", "")
	v.SetDefault("VIETQR_TEMPLATE", "compact2")

	v.SetDefault("PAYOUT_API_URL", "")
	v.SetDefault("PAYOUT_CLIENT_ID", "")
	v.SetDefault("PAYOUT_CLIENT_SECRET", "")
	v.SetDefault("PAYOUT_MAX_ATTEMPTS", 5)
	v.SetDefault("PAYOUT_CRON", "*/5 * * * *")

	v.SetDefault("BREVO_API_KEY", "")
	v.SetDefault("EMAIL_SENDER", "")
	v.SetDefault("EMAIL_SENDER_NAME", "")

	v.SetDefault("STATUS_POLL_PER_MINUTE", 120)
	v.SetDefault("BANK_WEBHOOK_PER_MINUTE", 3000)
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() (*AppConfig, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("Warning: .env file not found, reading from system environment variables")
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *AppConfig) Validate() error {
	if c.DBDriver != "postgres" && c.DBDriver != "sqlite" {
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if c.ReferenceSecret == "" {
		return fmt.Errorf("REFERENCE_SECRET is not set")
	}
	if c.PaymentSessionTTL <= 0 {
		return fmt.Errorf("PAYMENT_SESSION_TTL must be positive")
	}
	if c.CheckInHour < 0 || c.CheckInHour > 23 || c.CheckOutHour < 0 || c.CheckOutHour > 23 {
		return fmt.Errorf("CHECK_IN_HOUR and CHECK_OUT_HOUR must be between 0 and 23")
	}
	if c.MatchAmountTolerance < 0 {
		return fmt.Errorf("MATCH_AMOUNT_TOLERANCE cannot be negative")
	}
	return nil
}

func (c *AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE; booking dates are interpreted in it.
func (c *AppConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}
