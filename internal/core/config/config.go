package config

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port         string
	DatabaseURL  string
	Env          string
	NotifySecret string

	// Platform cut applied to every payment, e.g. "0.03".
	CommissionRate decimal.Decimal

	// Calendar used for daily commission bucketing.
	MerchantTimezone *time.Location

	Gateway GatewayConfig
}

// GatewayConfig holds the JazzCash-style payment gateway credentials.
// Passed into the gateway client explicitly so tests can inject their own.
type GatewayConfig struct {
	MerchantID    string
	Password      string
	IntegritySalt string
	ReturnURL     string
	Sandbox       bool
}

// LoadConfig reads .env file and returns a Config struct
func LoadConfig() *Config {
	// Try loading .env file (it might not exist in Production, which is fine)
	err := godotenv.Load()
	if err != nil {
		slog.Warn("No .env file found, relying on System Env Variables")
	}

	rate, err := decimal.NewFromString(getEnv("PLATFORM_COMMISSION", "0.03"))
	if err != nil {
		slog.Error("Invalid PLATFORM_COMMISSION, falling back to 0.03", "error", err)
		rate = decimal.NewFromFloat(0.03)
	}

	tz := getEnv("MERCHANT_TIMEZONE", "Asia/Karachi")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		slog.Error("Invalid MERCHANT_TIMEZONE, falling back to UTC", "tz", tz, "error", err)
		loc = time.UTC
	}

	return &Config{
		Port:             getEnv("PORT", "3000"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		Env:              getEnv("ENV", "development"),
		NotifySecret:     getEnv("NOTIFY_SECRET", ""),
		CommissionRate:   rate,
		MerchantTimezone: loc,
		Gateway: GatewayConfig{
			MerchantID:    getEnv("GATEWAY_MERCHANT_ID", ""),
			Password:      getEnv("GATEWAY_PASSWORD", ""),
			IntegritySalt: getEnv("GATEWAY_INTEGRITY_SALT", ""),
			ReturnURL:     getEnv("GATEWAY_RETURN_URL", ""),
			Sandbox:       getEnv("GATEWAY_SANDBOX", "true") == "true",
		},
	}
}

// Helper to get env with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
