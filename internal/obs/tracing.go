// Package obs wires OpenTelemetry tracing for the booking server.
package obs

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	instrumentationName = "github.com/MarkoPoloResearchLab/exchangebooking/internal/obs"
	serviceVersion      = "0.1.0"
)

// TracerConfig selects the collector and the resource attributes.
type TracerConfig struct {
	ServiceName string
	Environment string
	// Endpoint is the OTLP gRPC collector address. Empty disables export.
	Endpoint string
}

// InitTracer installs a global tracer provider exporting over OTLP gRPC and
// returns its shutdown function. An empty endpoint installs nothing and
// returns a no-op shutdown.
func InitTracer(ctx context.Context, cfg TracerConfig) (func(context.Context) error, error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	conn, err := grpc.NewClient(cfg.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("otlp dial: %w", err)
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return func(shutdownCtx context.Context) error {
		err := provider.Shutdown(shutdownCtx)
		_ = conn.Close()
		return err
	}, nil
}

// Middleware starts a server span per request, continuing any incoming W3C trace context.
func Middleware(provider trace.TracerProvider) gin.HandlerFunc {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(instrumentationName)
	propagator := propagation.TraceContext{}
	return func(ctx *gin.Context) {
		parent := propagator.Extract(ctx.Request.Context(), propagation.HeaderCarrier(ctx.Request.Header))
		route := ctx.FullPath()
		if route == "" {
			route = ctx.Request.URL.Path
		}
		spanCtx, span := tracer.Start(parent, ctx.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(ctx.Request.Method),
				semconv.HTTPRoute(route),
			),
		)
		defer span.End()
		ctx.Request = ctx.Request.WithContext(spanCtx)
		ctx.Next()

		status := ctx.Writer.Status()
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if kind, found := ctx.Get(ErrorKindContextKey); found {
			span.SetAttributes(attribute.String("booking.error_kind", fmt.Sprint(kind)))
		}
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
	}
}

// ErrorKindContextKey is the gin context key handlers set to the booking error kind.
const ErrorKindContextKey = "booking_error_kind"
