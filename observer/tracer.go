package observer

import (
	"context"
	"fmt"

	codeact "github.com/nevindra/codeact"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// NewTracer returns a codeact.Tracer backed by the global OTEL
// TracerProvider. Call Init first; otherwise spans go to a no-op backend.
func NewTracer() codeact.Tracer {
	return NewTracerFrom(otel.GetTracerProvider())
}

// NewTracerFrom returns a codeact.Tracer on an explicit provider.
func NewTracerFrom(tp trace.TracerProvider) codeact.Tracer {
	return &otelTracer{inner: tp.Tracer(scopeName)}
}

type otelTracer struct {
	inner trace.Tracer
}

func (t *otelTracer) Start(ctx context.Context, name string, attrs ...codeact.SpanAttr) (context.Context, codeact.Span) {
	ctx, span := t.inner.Start(ctx, name, trace.WithAttributes(toOTELAttrs(attrs)...))
	return ctx, &otelSpan{inner: span}
}

type otelSpan struct {
	inner trace.Span
}

func (s *otelSpan) SetAttr(attrs ...codeact.SpanAttr) {
	s.inner.SetAttributes(toOTELAttrs(attrs)...)
}

func (s *otelSpan) Event(name string, attrs ...codeact.SpanAttr) {
	s.inner.AddEvent(name, trace.WithAttributes(toOTELAttrs(attrs)...))
}

func (s *otelSpan) Error(err error) {
	s.inner.RecordError(err)
	s.inner.SetStatus(codes.Error, err.Error())
}

func (s *otelSpan) End() { s.inner.End() }

func toOTELAttrs(attrs []codeact.SpanAttr) []attribute.KeyValue {
	out := make([]attribute.KeyValue, len(attrs))
	for i, a := range attrs {
		out[i] = toOTELAttr(a)
	}
	return out
}

func toOTELAttr(a codeact.SpanAttr) attribute.KeyValue {
	switch v := a.Value.(type) {
	case string:
		return attribute.String(a.Key, v)
	case int:
		return attribute.Int(a.Key, v)
	case int64:
		return attribute.Int64(a.Key, v)
	case float64:
		return attribute.Float64(a.Key, v)
	case bool:
		return attribute.Bool(a.Key, v)
	case []string:
		return attribute.StringSlice(a.Key, v)
	default:
		return attribute.String(a.Key, fmt.Sprintf("%v", v))
	}
}

var (
	_ codeact.Tracer = (*otelTracer)(nil)
	_ codeact.Span   = (*otelSpan)(nil)
)
