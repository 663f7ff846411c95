package httpapi

import (
	"fmt"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8080"
	defaultAllowedOrigin   = "http://localhost:8000"
	defaultJWTIssuer       = "exchangebooking"
	defaultRequestTimeout  = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultRateLimitRPS    = 10
	defaultRateLimitBurst  = 20
)

// Config aggregates runtime settings for the booking HTTP API.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	JWTSigningKey   string
	JWTIssuer       string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// RateLimitRPS is the sustained per-client request rate. Zero uses the default.
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
	// name the client. Empty trusts none and keys clients by peer address.
	TrustedProxies []string
}

// Validate fills defaults and ensures the configuration contains sane values.
func (cfg *Config) Validate() error {
	cfg.ListenAddr = defaultIfEmpty(cfg.ListenAddr, defaultListenAddr)
	cfg.JWTIssuer = defaultIfEmpty(cfg.JWTIssuer, defaultJWTIssuer)
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{defaultAllowedOrigin}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = defaultRateLimitRPS
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = defaultRateLimitBurst
	}
	if cfg.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit rps must be positive")
	}
	if cfg.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}
	if len(cfg.JWTSigningKey) == 0 {
		return fmt.Errorf("jwt signing key is required")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// ParseAllowedOrigins splits comma-delimited origins into a slice.
func ParseAllowedOrigins(raw string) []string {
	return parseList(raw)
}

// ParseTrustedProxies splits comma-delimited proxy addresses into a slice.
func ParseTrustedProxies(raw string) []string {
	return parseList(raw)
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
