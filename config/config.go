package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every runtime setting, loaded once at startup and injected
// into the components that need it. No package-level state.
type Config struct {
	Port string

	MongoURI  string
	MongoDB   string
	RedisAddr string

	JWTSecret []byte

	// Payment provider selection: "square" or "stripe".
	PaymentProvider string
	SquareToken     string
	SquareBaseURL   string
	StripeKey       string
	StripeBaseURL   string
	WebhookSecret   string

	// Authoritative pricing constants, used everywhere (preview and final).
	TaxRate               float64
	FreeShippingThreshold float64
	ShippingFee           float64
	MinChargeCents        int64

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPPassword string
	FrontendURL  string

	SweepInterval time.Duration
}

// Load reads configuration from the environment. Defaults keep a dev
// instance bootable with nothing but Mongo and Redis running locally.
func Load() (*Config, error) {
	cfg := &Config{
		Port:            envOr("PORT", "8080"),
		MongoURI:        envOr("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDB:         envOr("MONGODB_DB", "fernway"),
		RedisAddr:       envOr("REDIS_ADDR", "localhost:6379"),
		JWTSecret:       []byte(envOr("JWT_SECRET", "")),
		PaymentProvider: envOr("PAYMENT_PROVIDER", "square"),
		SquareToken:     os.Getenv("SQUARE_ACCESS_TOKEN"),
		SquareBaseURL:   envOr("SQUARE_BASE_URL", "https://connect.squareup.com"),
		StripeKey:       os.Getenv("STRIPE_SECRET_KEY"),
		StripeBaseURL:   envOr("STRIPE_BASE_URL", "https://api.stripe.com"),
		WebhookSecret:   os.Getenv("PAYMENT_WEBHOOK_SECRET"),
		SMTPHost:        envOr("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:        envOr("SMTP_PORT", "587"),
		SMTPFrom:        os.Getenv("SMTP_FROM"),
		SMTPPassword:    os.Getenv("SMTP_PASSWORD"),
		FrontendURL:     envOr("FRONTEND_URL", "http://localhost:3000"),
	}

	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.PaymentProvider != "square" && cfg.PaymentProvider != "stripe" {
		return nil, fmt.Errorf("unknown PAYMENT_PROVIDER %q", cfg.PaymentProvider)
	}

	var err error
	if cfg.TaxRate, err = envFloat("TAX_RATE", 0.0775); err != nil {
		return nil, err
	}
	if cfg.FreeShippingThreshold, err = envFloat("FREE_SHIPPING_THRESHOLD", 100); err != nil {
		return nil, err
	}
	if cfg.ShippingFee, err = envFloat("SHIPPING_FEE", 10); err != nil {
		return nil, err
	}
	minCharge, err := envFloat("MIN_CHARGE_CENTS", 100)
	if err != nil {
		return nil, err
	}
	cfg.MinChargeCents = int64(minCharge)

	sweepMin, err := envFloat("SWEEP_INTERVAL_MINUTES", 30)
	if err != nil {
		return nil, err
	}
	cfg.SweepInterval = time.Duration(sweepMin * float64(time.Minute))

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}
