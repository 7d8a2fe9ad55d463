package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Observability records per-route request metrics through OpenTelemetry;
// the prometheus exporter makes them visible on /metrics. Request spans go
// to the tracer provider; no exporter is attached unless one is registered
// with WithSpanProcessor.
type Observability struct {
	meterProvider   *metric.MeterProvider
	tracerProvider  *sdktrace.TracerProvider
	tracer          trace.Tracer
	requestCounter  otelmetric.Int64Counter
	requestDuration otelmetric.Float64Histogram
}

type Option func(*options)

type options struct {
	spanProcessors []sdktrace.SpanProcessor
}

// WithSpanProcessor attaches a span processor (and with it an exporter).
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) { o.spanProcessors = append(o.spanProcessors, sp) }
}

// New builds the meter provider. On exporter failure it returns a usable
// no-op instance together with the error.
func New(serviceName string, opts ...Option) (*Observability, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	tpOpts := make([]sdktrace.TracerProviderOption, 0, len(o.spanProcessors))
	for _, sp := range o.spanProcessors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
	}
	tracerProvider := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tracerProvider)
	obs := &Observability{
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(serviceName),
	}

	exporter, err := prometheus.New()
	if err != nil {
		return obs, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	obs.meterProvider = provider

	meter := provider.Meter(serviceName)

	obs.requestCounter, err = meter.Int64Counter(
		"http.server.requests",
		otelmetric.WithDescription("Number of HTTP requests handled"),
	)
	if err != nil {
		return obs, err
	}

	obs.requestDuration, err = meter.Float64Histogram(
		"http.server.duration",
		otelmetric.WithDescription("HTTP request duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return obs, err
	}
	return obs, nil
}

// StartSpan starts a server span. A nil Observability hands out no-op spans.
func (o *Observability) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if o == nil || o.tracer == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return o.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attrs...),
	)
}

// RecordRequest counts one request and its duration.
func (o *Observability) RecordRequest(ctx context.Context, route, method string, status int, duration time.Duration) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("route", route),
		attribute.String("method", method),
		attribute.Int("status", status),
	)
	if o.requestCounter != nil {
		o.requestCounter.Add(ctx, 1, attrs)
	}
	if o.requestDuration != nil {
		o.requestDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	}
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if o.tracerProvider != nil {
		errs = append(errs, o.tracerProvider.Shutdown(ctx))
	}
	if o.meterProvider != nil {
		errs = append(errs, o.meterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
