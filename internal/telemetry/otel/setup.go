// Package otel builds the OpenTelemetry trace, metric and log providers for the auth
// service, exporting over OTLP gRPC when an endpoint is configured.
package otel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"
)

const metricInterval = 10 * time.Second

// Options configures NewProviders.
type Options struct {
	// Endpoint is the OTLP collector; empty yields local providers that export nothing.
	Endpoint    string
	ServiceName string
	// Environment is recorded as deployment.environment.name.
	Environment string
	// Insecure forces plaintext even for https endpoints (OTEL_EXPORTER_OTLP_INSECURE).
	Insecure bool
}

// Providers holds the OpenTelemetry providers and a shutdown function.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Shutdown       func(context.Context) error
}

// NewProviders creates the three providers. Only host:port of the endpoint is dialed.
func NewProviders(ctx context.Context, opts Options, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(),
			LoggerProvider: sdklog.NewLoggerProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	target, secure, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	res, err := newResource(opts)
	if err != nil {
		return nil, err
	}
	b := &builder{target: target, insecure: opts.Insecure || !secure, res: res, logger: logger}

	tp, err := b.tracer(ctx)
	if err != nil {
		return nil, err
	}
	mp, err := b.meter(ctx)
	if err != nil {
		return nil, b.abort(ctx, err)
	}
	lp, err := b.log(ctx)
	if err != nil {
		return nil, b.abort(ctx, err)
	}
	return &Providers{
		TracerProvider: tp,
		MeterProvider:  mp,
		LoggerProvider: lp,
		Shutdown:       b.shutdown,
	}, nil
}

// newResource merges the service attributes into the SDK defaults. The attributes are
// schemaless so the merge never conflicts with the SDK's semconv version.
func newResource(opts Options) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceNameKey.String(opts.ServiceName)}
	if opts.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentNameKey.String(opts.Environment))
	}
	return resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
}

// builder creates exporters against one collector and remembers how to shut them down,
// most recent first.
type builder struct {
	target   string
	insecure bool
	res      *resource.Resource
	logger   *zap.Logger
	stops    []func(context.Context) error
}

func (b *builder) tracer(ctx context.Context) (*sdktrace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(b.target)}
	if b.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(b.res))
	b.stops = append(b.stops, tp.Shutdown)
	return tp, nil
}

func (b *builder) meter(ctx context.Context) (*metric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(b.target)}
	if b.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithResource(b.res),
		metric.WithReader(metric.NewPeriodicReader(exp, metric.WithInterval(metricInterval))),
	)
	b.stops = append(b.stops, mp.Shutdown)
	return mp, nil
}

func (b *builder) log(ctx context.Context) (*sdklog.LoggerProvider, error) {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(b.target)}
	if b.insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exp, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("log exporter: %w", err)
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(b.res),
	)
	b.stops = append(b.stops, lp.Shutdown)
	return lp, nil
}

// abort releases whatever was already built and returns cause.
func (b *builder) abort(ctx context.Context, cause error) error {
	_ = b.shutdown(ctx)
	return cause
}

func (b *builder) shutdown(ctx context.Context) error {
	var lastErr error
	for i := len(b.stops) - 1; i >= 0; i-- {
		if err := b.stops[i](ctx); err != nil {
			b.logger.Warn("telemetry shutdown failed", zap.Error(err))
			lastErr = err
		}
	}
	return lastErr
}

// SetGlobal installs the tracer and meter providers globally so otelgrpc and
// telemetry.NewAuthMetrics pick them up.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}

// parseEndpoint returns the host:port to dial and whether the endpoint asked for TLS.
func parseEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}
