package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port        int
	DatabaseURL string
	RedisURL    string

	JWTSecret  string
	DisableJWT bool

	// VATPercent is a fraction (0.25 means 25%).
	VATPercent decimal.Decimal

	PaymentProvider      string
	PaymentAPIKey        string
	PaymentAPIURL        string
	PaymentWebhookSecret string

	// RenewWebhookURL is the optional outbound webhook notified after
	// a renewal; empty disables the notification.
	RenewWebhookURL string

	CORSOrigins []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	port, _ := strconv.Atoi(getEnv("PORT", "3034"))

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	disableJWT := getEnv("DISABLE_JWT", "") == "true"
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" && !disableJWT {
		return nil, fmt.Errorf("JWT_SECRET is required unless DISABLE_JWT=true")
	}

	vatPercent, err := parseVATPercent(getEnv("VAT_PERCENT", "25"))
	if err != nil {
		return nil, err
	}

	provider := getEnv("PAYMENT_PROVIDER", "none")
	if provider != "none" && provider != "stripe" {
		return nil, fmt.Errorf("PAYMENT_PROVIDER must be \"stripe\" or \"none\", got %q", provider)
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "*"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:                 port,
		DatabaseURL:          dbURL,
		RedisURL:             getEnv("REDIS_URL", ""),
		JWTSecret:            jwtSecret,
		DisableJWT:           disableJWT,
		VATPercent:           vatPercent,
		PaymentProvider:      provider,
		PaymentAPIKey:        getEnv("PAYMENT_API_KEY", ""),
		PaymentAPIURL:        getEnv("PAYMENT_API_URL", "https://api.stripe.com/v1"),
		PaymentWebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
		RenewWebhookURL:      getEnv("WEBHOOK_RENEW_SUBSCRIPTION", ""),
		CORSOrigins:          origins,
	}, nil
}

// parseVATPercent converts a whole percentage ("25") into a fraction (0.25).
func parseVATPercent(raw string) (decimal.Decimal, error) {
	percent, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("VAT_PERCENT must be numeric, got %q", raw)
	}
	return percent.Div(decimal.NewFromInt(100)), nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
