// Package observability wires OpenTelemetry tracing and Prometheus metrics.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/m3rciful/shopbot/core/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Config controls tracing. Metrics are always collected.
type Config struct {
	Tracing     bool    `yaml:"tracing" envconfig:"OBS_TRACING"`
	Exporter    string  `yaml:"exporter" envconfig:"OBS_TRACE_EXPORTER"`
	Endpoint    string  `yaml:"endpoint" envconfig:"OBS_OTLP_ENDPOINT"`
	Insecure    bool    `yaml:"insecure" envconfig:"OBS_OTLP_INSECURE"`
	SampleRatio float64 `yaml:"sample_ratio" envconfig:"OBS_SAMPLE_RATIO"`
	ServiceName string  `yaml:"service_name" envconfig:"OBS_SERVICE_NAME"`
	Environment string  `yaml:"environment" envconfig:"OBS_ENVIRONMENT"`
}

// ShutdownFunc flushes and stops the tracer provider.
type ShutdownFunc func(context.Context) error

// SetupTracing installs a global tracer provider when tracing is enabled.
// With tracing off the returned shutdown is a no-op and spans stay
// non-recording.
func SetupTracing(ctx context.Context, cfg Config, version string) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Tracing {
		return noop, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "shopbot"
	}

	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
		attribute.String("service.environment", cfg.Environment),
	}
	res, err := sdkresource.New(ctx,
		sdkresource.WithFromEnv(),
		sdkresource.WithHost(),
		sdkresource.WithAttributes(attrs...),
	)
	if err != nil {
		logger.Warn(ctx, "otel", "tracing.resource",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		res = sdkresource.NewSchemaless(attrs...)
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info(ctx, "otel", "tracing.init",
		slog.String("status", "ok"),
		slog.String("exporter", strings.ToLower(cfg.Exporter)),
		slog.String("service", cfg.ServiceName),
	)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

func newExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("OBS_OTLP_ENDPOINT must be set for otlp exporter")
		}
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
}
