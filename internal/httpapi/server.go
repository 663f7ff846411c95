// Package httpapi exposes the booking service over a JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/exchangebooking/internal/obs"
	"github.com/MarkoPoloResearchLab/exchangebooking/pkg/booking"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var errMissingService = errors.New("booking service is required")

// AvailabilityReader answers availability reads; the service or a cache in front of it.
type AvailabilityReader interface {
	Availability(ctx context.Context, query booking.AvailabilityQuery) (booking.Availability, error)
}

// CacheInvalidator drops cached availability after writes.
type CacheInvalidator interface {
	InvalidateDate(ctx context.Context, exchangeID booking.ExchangeID, date booking.Date) error
	InvalidateExchange(ctx context.Context, exchangeID booking.ExchangeID) error
}

// Dependencies are the collaborators the API serves.
type Dependencies struct {
	Service *booking.Service
	// Availability defaults to Service.
	Availability AvailabilityReader
	// Cache is optional.
	Cache          CacheInvalidator
	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
}

// Run boots the HTTP API and blocks until ctx is cancelled or the server fails.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	router, err := NewRouter(cfg, deps)
	if err != nil {
		return err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("booking api listening", zap.String("addr", cfg.ListenAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// NewRouter builds the gin engine with every route of the API.
func NewRouter(cfg Config, deps Dependencies) (*gin.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Service == nil {
		return nil, errMissingService
	}
	handler := newHandler(cfg, deps)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(obs.Middleware(deps.TracerProvider))
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept", "Authorization", "traceparent"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(rateLimitMiddleware(newRateLimiterStore(cfg.RateLimitRPS, cfg.RateLimitBurst), handler.logger))
	api.Use(requestTimeout(cfg.RequestTimeout))

	api.GET("/availability", handler.handleAvailability)
	api.GET("/business-hours", handler.handleListBusinessHours)

	authenticated := api.Group("")
	authenticated.Use(handler.requireActor)

	authenticated.POST("/bookings", handler.handleCreateBooking)
	authenticated.GET("/bookings", handler.handleListBookings)
	authenticated.GET("/bookings/:id", handler.handleGetBooking)
	authenticated.POST("/bookings/:id/cancel", handler.handleCancelBooking)
	authenticated.POST("/bookings/:id/confirm", handler.handleConfirmBooking)
	authenticated.POST("/bookings/:id/complete", handler.handleCompleteBooking)
	authenticated.PATCH("/bookings/:id/status", handler.handleUpdateStatus)

	authenticated.POST("/business-hours/bulk", handler.handleSetBusinessHours)
	authenticated.POST("/business-hours/shifts", handler.handleAddShift)
	authenticated.POST("/business-hours/template", handler.handleApplyTemplate)

	authenticated.POST("/time-slots/generate", handler.handleGenerateSlots)
	authenticated.GET("/exchanges/:id/stats", handler.handleExchangeStats)

	return router, nil
}

type httpHandler struct {
	service      *booking.Service
	availability AvailabilityReader
	cache        CacheInvalidator
	logger       *zap.Logger
	verifier     tokenVerifier
	validate     *validator.Validate
}

func newHandler(cfg Config, deps Dependencies) *httpHandler {
	handler := &httpHandler{
		service:      deps.Service,
		availability: deps.Availability,
		cache:        deps.Cache,
		logger:       deps.Logger,
		verifier:     newTokenVerifier(cfg),
		validate:     newValidator(),
	}
	if handler.availability == nil {
		handler.availability = deps.Service
	}
	if handler.logger == nil {
		handler.logger = zap.NewNop()
	}
	return handler
}

func requestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		requestCtx, cancel := context.WithTimeout(ctx.Request.Context(), timeout)
		defer cancel()
		ctx.Request = ctx.Request.WithContext(requestCtx)
		ctx.Next()
	}
}

func (handler *httpHandler) bindPayload(ctx *gin.Context, payload any) error {
	if err := ctx.ShouldBindJSON(payload); err != nil {
		return fmt.Errorf("%w: expected JSON body", errInvalidPayload)
	}
	return validatePayload(handler.validate, payload)
}

// bindOptionalPayload accepts an empty body.
func (handler *httpHandler) bindOptionalPayload(ctx *gin.Context, payload any) error {
	if err := ctx.ShouldBindJSON(payload); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: expected JSON body", errInvalidPayload)
	}
	return validatePayload(handler.validate, payload)
}

func (handler *httpHandler) invalidateDate(ctx context.Context, exchangeID booking.ExchangeID, date booking.Date) {
	if handler.cache == nil {
		return
	}
	if err := handler.cache.InvalidateDate(ctx, exchangeID, date); err != nil {
		handler.logger.Warn("availability cache invalidation failed",
			zap.String("exchange_id", exchangeID.String()),
			zap.String("date", date.String()),
			zap.Error(err),
		)
	}
}

func (handler *httpHandler) invalidateExchange(ctx context.Context, exchangeID booking.ExchangeID) {
	if handler.cache == nil {
		return
	}
	if err := handler.cache.InvalidateExchange(ctx, exchangeID); err != nil {
		handler.logger.Warn("availability cache invalidation failed",
			zap.String("exchange_id", exchangeID.String()),
			zap.Error(err),
		)
	}
}
