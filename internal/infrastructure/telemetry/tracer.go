// Package telemetry wires OpenTelemetry traces, metrics and logs plus
// Pyroscope profiling for the ledger service.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type TraceConfig struct {
	Enabled bool
	Collector
	// SamplingRatio of 1 keeps every root span, 0 none
	SamplingRatio float64
}

// TracerProvider exports spans and, once profiling runs, links CPU profiles
// to them.
type TracerProvider struct {
	sdk      *sdktrace.TracerProvider
	log      *zap.Logger
	mu       sync.Mutex
	profiled bool
}

func samplerFor(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	if ratio <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// NewTracerProvider installs an OTLP span exporter as the global provider
// together with W3C trace context propagation. Disabled tracing keeps the
// global no-op provider.
func NewTracerProvider(ctx context.Context, cfg TraceConfig, log *zap.Logger) (*TracerProvider, error) {
	tp := &TracerProvider{log: log}
	if !cfg.Enabled {
		log.Info("Tracing disabled")
		return tp, nil
	}

	res, err := cfg.resource()
	if err != nil {
		return nil, err
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}

	tp.sdk = sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(samplerFor(cfg.SamplingRatio)),
	)
	otel.SetTracerProvider(tp.sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))

	log.Info("Tracing enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
	)
	return tp, nil
}

var errTracingDisabled = errors.New("span profiles need tracing enabled")

// EnableSpanProfiles wraps the global provider so profiles carry span ids.
// Start the profiler first. Repeated calls are no-ops.
func (tp *TracerProvider) EnableSpanProfiles() error {
	if tp.sdk == nil {
		return errTracingDisabled
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if !tp.profiled {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(tp.sdk))
		tp.profiled = true
		tp.log.Info("Span profiles enabled")
	}
	return nil
}

func (tp *TracerProvider) IsEnabled() bool {
	return tp.sdk != nil
}

// Shutdown flushes buffered spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	var fn shutdownFunc
	if tp.sdk != nil {
		fn = tp.sdk.Shutdown
	}
	return fn.run(ctx, "tracer")
}
