package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/internal/availcache"
	"github.com/MarkoPoloResearchLab/exchangebooking/internal/httpapi"
	"github.com/MarkoPoloResearchLab/exchangebooking/internal/notify"
	"github.com/MarkoPoloResearchLab/exchangebooking/internal/obs"
	"github.com/MarkoPoloResearchLab/exchangebooking/internal/oplog"
	"github.com/MarkoPoloResearchLab/exchangebooking/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const drainTimeout = 5 * time.Second

// application holds the wired service and everything that must be released with it.
type application struct {
	service *booking.Service
	closers []func()
}

func (rt *application) close() {
	for index := len(rt.closers) - 1; index >= 0; index-- {
		rt.closers[index]()
	}
}

func newApplication(ctx context.Context, cfg *runtimeConfig, logger *zap.Logger) (*application, error) {
	rt := &application{}
	db, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	rt.closers = append(rt.closers, func() { _ = cleanup() })
	if err := prepareSchema(ctx, db, driver); err != nil {
		rt.close()
		return nil, err
	}

	store, closeStore, err := openStore(ctx, cfg, db, driver)
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.closers = append(rt.closers, closeStore)

	sinks := []notify.Sink{notify.NewLogSink(logger)}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = publisher.Close() })
		sinks = append(sinks, publisher)
	}
	dispatcher := notify.NewDispatcher(logger, sinks)
	rt.closers = append(rt.closers, func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := dispatcher.Close(drainCtx); err != nil {
			logger.Warn("notification queue not drained", zap.Error(err))
		}
	})

	clock := func() time.Time { return time.Now().UTC() }
	service, err := booking.NewService(store, gormstore.NewDirectory(db), clock,
		booking.WithOperationLogger(oplog.New(logger)),
		booking.WithLocation(cfg.Location),
		booking.WithNotifier(dispatcher),
	)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("booking service init: %w", err)
	}
	rt.service = service
	return rt, nil
}

// openCache returns nil when no redis address is configured.
func openCache(ctx context.Context, cfg *runtimeConfig, rt *application, logger *zap.Logger) *availcache.Cache {
	if cfg.RedisAddr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rt.closers = append(rt.closers, func() { _ = client.Close() })
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, availability reads will bypass the cache", zap.Error(err))
	}
	return availcache.New(client, rt.service, cfg.CacheTTL, logger)
}

func runServe(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracerConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTelEndpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	rt, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	deps := httpapi.Dependencies{Service: rt.service, Logger: logger}
	if cache := openCache(ctx, cfg, rt, logger); cache != nil {
		deps.Availability = cache
		deps.Cache = cache
	}

	logger.Info("booking service starting",
		zap.String("store", cfg.Store),
		zap.String("location", cfg.Location.String()),
		zap.Bool("amqp", cfg.AMQPURL != ""),
		zap.Bool("cache", cfg.RedisAddr != ""),
		zap.Bool("tracing", cfg.OTelEndpoint != ""),
	)
	return httpapi.Run(ctx, cfg.HTTP, deps)
}

func runMigrate(ctx context.Context, cfg *runtimeConfig) error {
	db, cleanup, _, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()
	return gormstore.Migrate(ctx, db)
}

func runSweep(ctx context.Context, cfg *runtimeConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close()

	report, err := rt.service.ExpireStalePending(ctx, cfg.SweepGrace)
	if err != nil {
		return err
	}
	if cache := openCache(ctx, cfg, rt, logger); cache != nil {
		for _, day := range report.Days {
			if err := cache.InvalidateDate(ctx, day.ExchangeID, day.Date); err != nil {
				logger.Warn("availability cache invalidation failed",
					zap.String("exchange_id", day.ExchangeID.String()),
					zap.String("date", day.Date.String()),
					zap.Error(err),
				)
			}
		}
	}
	logger.Info("pending sweep finished",
		zap.Int("examined", report.Examined),
		zap.Int("expired", len(report.Expired)),
		zap.Int("skipped", report.Skipped),
		zap.Duration("grace", cfg.SweepGrace),
	)
	return nil
}

var errMissingDirectoryID = errors.New("--id is required")

func runAddExchange(ctx context.Context, cfg *runtimeConfig, rawID string, name string, rawOwner string) error {
	exchangeID, err := booking.NewExchangeID(rawID)
	if err != nil {
		return errMissingDirectoryID
	}
	ownerID, err := booking.NewUserID(rawOwner)
	if err != nil {
		return fmt.Errorf("--owner: %w", err)
	}
	return withDirectory(ctx, cfg, func(directory *gormstore.Directory) error {
		return directory.UpsertExchange(ctx, booking.Exchange{ID: exchangeID, Name: name, OwnerID: ownerID})
	})
}

func runAddUser(ctx context.Context, cfg *runtimeConfig, rawID string, email string, name string) error {
	userID, err := booking.NewUserID(rawID)
	if err != nil {
		return errMissingDirectoryID
	}
	return withDirectory(ctx, cfg, func(directory *gormstore.Directory) error {
		return directory.UpsertUser(ctx, booking.User{ID: userID, Email: email, DisplayName: name})
	})
}

func withDirectory(ctx context.Context, cfg *runtimeConfig, fn func(directory *gormstore.Directory) error) error {
	db, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database open: %w", err)
	}
	defer func() { _ = cleanup() }()
	if err := prepareSchema(ctx, db, driver); err != nil {
		return err
	}
	return fn(gormstore.NewDirectory(db))
}
