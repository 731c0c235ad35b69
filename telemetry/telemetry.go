// Package telemetry exports traces and logs over OTLP/HTTP.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/agentuity/go-fragment/logger"
	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

const exportTimeout = 10 * time.Second

// Config names the collector and the service reported to it.
type Config struct {
	Endpoint    string
	AuthToken   string
	ServiceName string
}

// Provider owns the trace and log pipelines.
type Provider struct {
	serviceName string
	traces      *sdktrace.TracerProvider
	logs        *sdklog.LoggerProvider
}

// New builds trace and log exporters for cfg.Endpoint. Nothing is installed
// globally until Install is called.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("error parsing otlp endpoint: %w", err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
		return nil, fmt.Errorf("otlp endpoint must be http or https, got %q", cfg.Endpoint)
	}
	name := cfg.ServiceName
	if name == "" {
		name = "fragment"
	}

	res, err := resource.New(
		ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithProcess(),
		resource.WithHost(),
		resource.WithAttributes(semconv.ServiceName(name)),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) && !errors.Is(err, resource.ErrSchemaURLConflict) {
		return nil, fmt.Errorf("error creating resource: %w", err)
	}

	headers := make(map[string]string)
	if cfg.AuthToken != "" {
		headers["Authorization"] = "Bearer " + cfg.AuthToken
	}
	insecure := endpoint.Scheme == "http"

	traceURL := *endpoint
	traceURL.Path = "/v1/traces"
	traceOpts := []otlptracehttp.Option{
		otlptracehttp.WithEndpointURL(traceURL.String()),
		otlptracehttp.WithHeaders(headers),
		otlptracehttp.WithTimeout(exportTimeout),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if insecure {
		traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
	}
	traceExporter, err := otlptracehttp.New(ctx, traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("error creating trace exporter: %w", err)
	}

	logURL := *endpoint
	logURL.Path = "/v1/logs"
	logOpts := []otlploghttp.Option{
		otlploghttp.WithEndpointURL(logURL.String()),
		otlploghttp.WithHeaders(headers),
		otlploghttp.WithTimeout(exportTimeout),
		otlploghttp.WithCompression(otlploghttp.GzipCompression),
	}
	if insecure {
		logOpts = append(logOpts, otlploghttp.WithInsecure())
	}
	logExporter, err := otlploghttp.New(ctx, logOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("error creating log exporter: %w", err)
	}

	return &Provider{
		serviceName: name,
		traces: sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(traceExporter),
		),
		logs: sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		),
	}, nil
}

// Install makes the provider the global tracer provider and registers the
// W3C trace context propagator.
func (p *Provider) Install() {
	otel.SetTracerProvider(p.traces)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
}

func (p *Provider) TracerProvider() trace.TracerProvider { return p.traces }

// Logger returns a logger exporting records at level and above.
func (p *Provider) Logger(level logger.LogLevel) logger.Logger {
	return logger.NewOtelLogger(p.logs.Logger(p.serviceName), level)
}

// Shutdown flushes and stops both pipelines.
func (p *Provider) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	if err := p.traces.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("traces: %w", err))
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("logs: %w", err))
	}
	return result.ErrorOrNil()
}
