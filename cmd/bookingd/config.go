package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/internal/availcache"
	"github.com/MarkoPoloResearchLab/exchangebooking/internal/httpapi"
	"github.com/MarkoPoloResearchLab/exchangebooking/internal/notify"
	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	flagDatabaseURL    = "database-url"
	flagStore          = "store"
	flagTimezone       = "timezone"
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagTrustedProxies = "trusted-proxies"
	flagJWTSigningKey  = "jwt-signing-key"
	flagJWTIssuer      = "jwt-issuer"
	flagRateLimitRPS   = "rate-limit-rps"
	flagRateLimitBurst = "rate-limit-burst"
	flagAMQPURL        = "amqp-url"
	flagAMQPExchange   = "amqp-exchange"
	flagRedisAddr      = "redis-addr"
	flagRedisPassword  = "redis-password"
	flagRedisDB        = "redis-db"
	flagCacheTTL       = "availability-cache-ttl"
	flagOTelEndpoint   = "otel-endpoint"
	flagEnvironment    = "environment"
	flagSweepGrace     = "sweep-grace"

	envPrefix          = "BOOKINGD"
	defaultDatabaseURL = "sqlite:///tmp/bookings.db"
	defaultTimezone    = "UTC"
	defaultEnvironment = "development"
	storeGorm          = "gorm"
	storePgx           = "pgx"
	serviceName        = "bookingd"
)

type runtimeConfig struct {
	DatabaseURL   string
	Store         string
	Location      *time.Location
	HTTP          httpapi.Config
	AMQPURL       string
	AMQPExchange  string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	OTelEndpoint  string
	Environment   string
	SweepGrace    time.Duration
}

// loadConfig binds every flag of cmd to viper so each can also come from
// BOOKINGD_<FLAG> in the environment.
func loadConfig(cmd *cobra.Command, cfg *runtimeConfig) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if bindErr == nil {
			bindErr = v.BindPFlag(flag.Name, flag)
		}
	})
	if bindErr != nil {
		return bindErr
	}

	cfg.DatabaseURL = strings.TrimSpace(v.GetString(flagDatabaseURL))
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = defaultDatabaseURL
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(v.GetString(flagStore)))
	if cfg.Store == "" {
		cfg.Store = storeGorm
	}
	if cfg.Store != storeGorm && cfg.Store != storePgx {
		return fmt.Errorf("unsupported store %q", cfg.Store)
	}
	timezone := strings.TrimSpace(v.GetString(flagTimezone))
	if timezone == "" {
		timezone = defaultTimezone
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	cfg.Location = location

	cfg.HTTP = httpapi.Config{
		ListenAddr:     strings.TrimSpace(v.GetString(flagListenAddr)),
		AllowedOrigins: httpapi.ParseAllowedOrigins(v.GetString(flagAllowedOrigins)),
		JWTSigningKey:  v.GetString(flagJWTSigningKey),
		JWTIssuer:      strings.TrimSpace(v.GetString(flagJWTIssuer)),
		RateLimitRPS:   v.GetFloat64(flagRateLimitRPS),
		RateLimitBurst: v.GetInt(flagRateLimitBurst),
		TrustedProxies: httpapi.ParseTrustedProxies(v.GetString(flagTrustedProxies)),
	}
	cfg.AMQPURL = strings.TrimSpace(v.GetString(flagAMQPURL))
	cfg.AMQPExchange = strings.TrimSpace(v.GetString(flagAMQPExchange))
	if cfg.AMQPExchange == "" {
		cfg.AMQPExchange = notify.DefaultAMQPExchange
	}
	cfg.RedisAddr = strings.TrimSpace(v.GetString(flagRedisAddr))
	cfg.RedisPassword = v.GetString(flagRedisPassword)
	cfg.RedisDB = v.GetInt(flagRedisDB)
	cfg.CacheTTL = v.GetDuration(flagCacheTTL)
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = availcache.DefaultTTL
	}
	cfg.OTelEndpoint = strings.TrimSpace(v.GetString(flagOTelEndpoint))
	cfg.Environment = strings.TrimSpace(v.GetString(flagEnvironment))
	if cfg.Environment == "" {
		cfg.Environment = defaultEnvironment
	}
	cfg.SweepGrace = v.GetDuration(flagSweepGrace)
	if cfg.SweepGrace == 0 {
		cfg.SweepGrace = booking.DefaultSweepGrace
	}
	if cfg.SweepGrace < 0 {
		return fmt.Errorf("%s must be positive", flagSweepGrace)
	}
	return nil
}
