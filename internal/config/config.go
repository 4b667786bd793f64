package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration sourced from env vars.
type Config struct {
	Port        string
	DatabaseURL string

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	CodeTTL time.Duration

	OrderRefPrefix string

	MerchantID   string
	MerchantKey  string
	MerchantSalt string
}

// Load reads configuration from the environment and performs minimal validation.
func Load() (Config, error) {
	cfg := Config{
		Port:           fallback(os.Getenv("PORT"), "8080"),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		JWTSecret:      strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:      fallback(os.Getenv("JWT_ISSUER"), "menuqr-api"),
		JWTTTL:         minutes(os.Getenv("JWT_TTL_MINUTES"), 60),
		CodeTTL:        minutes(os.Getenv("CODE_TTL_MINUTES"), 15),
		OrderRefPrefix: fallback(os.Getenv("ORDER_REF_PREFIX"), "SP"),
		MerchantID:     strings.TrimSpace(os.Getenv("MERCHANT_ID")),
		MerchantKey:    strings.TrimSpace(os.Getenv("MERCHANT_KEY")),
		MerchantSalt:   strings.TrimSpace(os.Getenv("MERCHANT_SALT")),
	}

	if cfg.JWTSecret == "" {
		return Config{}, errors.New("JWT_SECRET is required")
	}
	if len(cfg.OrderRefPrefix) != 2 || cfg.OrderRefPrefix != strings.ToUpper(cfg.OrderRefPrefix) {
		return Config{}, fmt.Errorf("ORDER_REF_PREFIX must be two upper-case letters, got %q", cfg.OrderRefPrefix)
	}

	return cfg, nil
}

// GatewayConfigured reports whether payment gateway credentials are complete.
func (c Config) GatewayConfigured() bool {
	return c.MerchantID != "" && c.MerchantKey != "" && c.MerchantSalt != ""
}

// HTTPAddress returns the host:port pair for the HTTP server to bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return strings.TrimSpace(value)
}

func minutes(value string, def int) time.Duration {
	if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && v > 0 {
		return time.Duration(v) * time.Minute
	}
	return time.Duration(def) * time.Minute
}
