// Package telemetry implements core.ReconcileTracer with OpenTelemetry,
// grounded on the teacher pack's telemetry.OTelProvider (resource +
// TracerProvider + MeterProvider setup, exporter selection by endpoint,
// idempotent Shutdown via sync.Once). Unlike the teacher's HTTP-based
// exporters, SHERIFF_OTLP_ENDPOINT selects a gRPC OTLP exporter — there is
// no HTTP server in this module to share a transport with — falling back
// to a stdout exporter so a sheriff run is traceable with zero setup.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetsheriff/sheriff/core"
)

// EndpointEnvVar names the environment variable that selects an OTLP/gRPC
// collector endpoint. When unset, traces are written to stdout instead.
const EndpointEnvVar = "SHERIFF_OTLP_ENDPOINT"

// Provider implements core.ReconcileTracer.
type Provider struct {
	tracer trace.Tracer
	meter  metric.Meter

	statusChanges metric.Int64Counter
	scriptLatency metric.Float64Histogram

	traceProvider *sdktrace.TracerProvider
	meterProvider *sdkmetric.MeterProvider

	shutdownOnce sync.Once
	mu           sync.RWMutex
	shutdown     bool
}

// NewProvider builds a Provider named serviceName. If the
// SHERIFF_OTLP_ENDPOINT environment variable is set, spans export over
// OTLP/gRPC to that collector; otherwise they are written to stdout.
func NewProvider(ctx context.Context, serviceName string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	traceExporter, err := newTraceExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	meter := mp.Meter("sheriff/reconcile")
	statusChanges, err := meter.Int64Counter("sheriff.command_status_changes",
		metric.WithDescription("Number of derived DeputyCommand status transitions observed"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating status-change counter: %w", err)
	}
	scriptLatency, err := meter.Float64Histogram("sheriff.script_action_latency_ms",
		metric.WithDescription("Latency in milliseconds of each executed script action"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating script-latency histogram: %w", err)
	}

	return &Provider{
		tracer:        tp.Tracer("sheriff/reconcile"),
		meter:         meter,
		statusChanges: statusChanges,
		scriptLatency: scriptLatency,
		traceProvider: tp,
		meterProvider: mp,
	}, nil
}

func newTraceExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := os.Getenv(EndpointEnvVar)
	if endpoint == "" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return otlptracegrpc.New(dialCtx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
}

// StartSpan implements core.ReconcileTracer.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	p.mu.RLock()
	down := p.shutdown
	p.mu.RUnlock()
	if down {
		return ctx, func() {}
	}
	spanCtx, span := p.tracer.Start(ctx, name)
	return spanCtx, func() { span.End() }
}

// RecordStatusChange implements core.ReconcileTracer.
func (p *Provider) RecordStatusChange(deputyName string, from, to core.Status) {
	p.mu.RLock()
	down := p.shutdown
	p.mu.RUnlock()
	if down {
		return
	}
	p.statusChanges.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("deputy", deputyName),
			attribute.String("from", from.String()),
			attribute.String("to", to.String()),
		))
}

// RecordScriptAction implements core.ReconcileTracer.
func (p *Provider) RecordScriptAction(scriptName string, actionIndex int, latencyMS float64) {
	p.mu.RLock()
	down := p.shutdown
	p.mu.RUnlock()
	if down {
		return
	}
	p.scriptLatency.Record(context.Background(), latencyMS,
		metric.WithAttributes(
			attribute.String("script", scriptName),
			attribute.Int("action_index", actionIndex),
		))
}

// Shutdown flushes and stops the exporters. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) error {
	var shutdownErr error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()

		var errs []error
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider: %w", err))
		}
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
		if len(errs) > 0 {
			shutdownErr = fmt.Errorf("telemetry shutdown errors: %v", errs)
		}
	})
	return shutdownErr
}
