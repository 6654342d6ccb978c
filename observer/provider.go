package observer

import (
	"context"
	"time"

	codeact "github.com/nevindra/codeact"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedProvider wraps a codeact.Provider with OTEL instrumentation.
type ObservedProvider struct {
	inner codeact.Provider
	inst  *Instruments
	model string
}

// WrapProvider returns an instrumented provider that emits an llm.stream
// span, request and event counters, a duration histogram and a log record
// per stream.
func WrapProvider(inner codeact.Provider, model string, inst *Instruments) *ObservedProvider {
	return &ObservedProvider{inner: inner, inst: inst, model: model}
}

func (o *ObservedProvider) Name() string { return o.inner.Name() }

func (o *ObservedProvider) Stream(ctx context.Context, req codeact.Request, ch chan<- codeact.ProviderEvent) (codeact.Response, error) {
	toolNames := make([]string, len(req.Tools))
	for i, t := range req.Tools {
		toolNames[i] = t.Name
	}
	ctx, span := o.inst.Tracer.Start(ctx, "llm.stream", trace.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		AttrInputItems.Int(len(req.Messages)),
		AttrToolCount.Int(len(req.Tools)),
		AttrToolNames.StringSlice(toolNames),
	))
	defer span.End()
	start := time.Now()

	// The inner provider closes wrapped; the forwarder closes ch. After ctx
	// is done the forwarder keeps draining so the inner provider never
	// blocks on send.
	wrapped := make(chan codeact.ProviderEvent, max(cap(ch), 64))
	events := make(map[codeact.ProviderEventType]int64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(ch)
		forwarding := true
		for ev := range wrapped {
			events[ev.Type]++
			if !forwarding {
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				forwarding = false
			}
		}
	}()

	resp, err := o.inner.Stream(ctx, req, wrapped)
	<-done

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	var total int64
	for typ, n := range events {
		total += n
		o.inst.StreamEvents.Add(ctx, n, metric.WithAttributes(
			AttrLLMProvider.String(o.inner.Name()),
			attribute.String("type", string(typ)),
		))
	}
	span.SetAttributes(
		AttrStreamEvents.Int64(total),
		AttrResponseID.String(resp.ID),
		AttrOutputItems.Int(len(resp.Output)),
	)

	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
		attribute.String("status", status),
	))
	o.inst.LLMDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLLMModel.String(o.model),
		AttrLLMProvider.String(o.inner.Name()),
	))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm stream completed"))
	rec.AddAttributes(
		otellog.String("llm.model", o.model),
		otellog.String("llm.provider", o.inner.Name()),
		otellog.String("llm.response_id", resp.ID),
		otellog.Int64("llm.stream_events", total),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return resp, err
}

var _ codeact.Provider = (*ObservedProvider)(nil)
