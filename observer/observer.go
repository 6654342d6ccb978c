// Package observer provides OTEL-based observability for codeact runs.
//
// It wraps Provider, CodeRunner and the event Sink with instrumented
// versions that emit traces, metrics and logs via OpenTelemetry. Users export
// to any OTEL-compatible backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/nevindra/codeact/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	LLMRequests       metric.Int64Counter
	StreamEvents      metric.Int64Counter
	SandboxExecutions metric.Int64Counter
	AgentEvents       metric.Int64Counter
	AgentRuns         metric.Int64Counter

	// Histograms
	LLMDuration       metric.Float64Histogram
	SandboxDuration   metric.Float64Histogram
	SandboxOutputSize metric.Int64Histogram
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context, serviceName string) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}
	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	meter := otel.Meter(scopeName)
	inst := &Instruments{
		Tracer: otel.Tracer(scopeName),
		Meter:  meter,
		Logger: global.GetLoggerProvider().Logger(scopeName),
	}

	var err error
	counter := func(name, desc, unit string) metric.Int64Counter {
		c, e := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		err = errors.Join(err, e)
		return c
	}
	inst.LLMRequests = counter("llm.requests", "LLM request count", "{request}")
	inst.StreamEvents = counter("llm.stream_events", "Provider stream events forwarded", "{event}")
	inst.SandboxExecutions = counter("sandbox.executions", "Code snippet executions", "{execution}")
	inst.AgentEvents = counter("agent.events", "Agent events emitted", "{event}")
	inst.AgentRuns = counter("agent.runs", "Completed agent runs", "{run}")

	h, e := meter.Float64Histogram("llm.duration",
		metric.WithDescription("LLM stream duration"), metric.WithUnit("ms"))
	err = errors.Join(err, e)
	inst.LLMDuration = h

	h, e = meter.Float64Histogram("sandbox.duration",
		metric.WithDescription("Code snippet execution duration"), metric.WithUnit("ms"))
	err = errors.Join(err, e)
	inst.SandboxDuration = h

	size, e := meter.Int64Histogram("sandbox.output_size",
		metric.WithDescription("Bytes of sandbox output returned to the model"), metric.WithUnit("By"))
	err = errors.Join(err, e)
	inst.SandboxOutputSize = size

	if err != nil {
		return nil, err
	}
	return inst, nil
}
