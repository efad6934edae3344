// Package telemetry wires OpenTelemetry tracing and logging to an OTLP/HTTP
// collector.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	tracesPath = "v1/traces"
	logsPath   = "v1/logs"
)

// ErrInvalidEndpoint is returned when the collector endpoint is not an http(s) URL.
var ErrInvalidEndpoint = errors.New("invalid OTLP endpoint")

// Config holds the OpenTelemetry configuration. It is filled from the
// environment by the config package.
type Config struct {
	Enabled        bool          `env:"OTEL_ENABLED"                envDefault:"false"`
	ServiceName    string        `env:"OTEL_SERVICE_NAME"           envDefault:"vending"`
	ServiceVersion string        `env:"OTEL_SERVICE_VERSION"        envDefault:"1.0.0"`
	Endpoint       string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Timeout        time.Duration `env:"OTEL_EXPORTER_OTLP_TIMEOUT"  envDefault:"5s"`
	Environment    string        `env:"ENVIRONMENT"                 envDefault:"local"`
}

// Providers owns the SDK providers created by Initialize. The zero value is a
// disabled pipeline; all methods are safe on it.
type Providers struct {
	traces *sdktrace.TracerProvider
	logs   *sdklog.LoggerProvider
	name   string
}

// Initialize sets up OpenTelemetry tracing and log export with the given
// configuration and installs the tracer provider globally. When telemetry is
// disabled it returns an empty Providers and no error.
func Initialize(ctx context.Context, config Config) (*Providers, error) {
	if !config.Enabled {
		slog.Info("OpenTelemetry is disabled")

		return &Providers{}, nil
	}

	if config.Endpoint == "" {
		slog.Warn("OpenTelemetry endpoint not configured, telemetry will be disabled")

		return &Providers{}, nil
	}

	endpoint, err := url.Parse(config.Endpoint)
	if err != nil || endpoint.Host == "" || (endpoint.Scheme != "http" && endpoint.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, config.Endpoint)
	}

	insecure := endpoint.Scheme == "http"

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint.Host),
		otlptracehttp.WithURLPath(path.Join("/", endpoint.Path, tracesPath)),
		otlptracehttp.WithTimeout(config.Timeout),
	}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}

	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	logOpts := []otlploghttp.Option{
		otlploghttp.WithEndpoint(endpoint.Host),
		otlploghttp.WithURLPath(path.Join("/", endpoint.Path, logsPath)),
		otlploghttp.WithTimeout(config.Timeout),
	}
	if insecure {
		logOpts = append(logOpts, otlploghttp.WithInsecure())
	}

	logExporter, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)

		return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
	}

	providers := &Providers{
		name: config.ServiceName,
		traces: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
		),
		logs: sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		),
	}

	otel.SetTracerProvider(providers.traces)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("OpenTelemetry initialized",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"environment", config.Environment,
		"endpoint", config.Endpoint,
	)

	return providers, nil
}

// Enabled reports whether Initialize created real providers.
func (p *Providers) Enabled() bool {
	return p != nil && p.traces != nil
}

// LogHandler returns a slog handler that forwards records to the OTLP log
// pipeline, or nil when telemetry is disabled. Pass it to
// logger.WithHandler.
func (p *Providers) LogHandler() slog.Handler {
	if p == nil || p.logs == nil {
		return nil
	}

	return otelslog.NewHandler(p.name, otelslog.WithLoggerProvider(p.logs))
}

// Shutdown flushes and stops both providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}

	slog.Info("Shutting down OpenTelemetry providers")

	return errors.Join(p.traces.Shutdown(ctx), p.logs.Shutdown(ctx))
}
