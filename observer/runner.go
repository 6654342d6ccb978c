package observer

import (
	"context"
	"strings"
	"time"

	codeact "github.com/nevindra/codeact"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedRunner wraps a codeact.CodeRunner with OTEL instrumentation.
type ObservedRunner struct {
	inner codeact.CodeRunner
	inst  *Instruments
}

// WrapRunner returns an instrumented runner.
func WrapRunner(inner codeact.CodeRunner, inst *Instruments) *ObservedRunner {
	return &ObservedRunner{inner: inner, inst: inst}
}

func (o *ObservedRunner) Run(ctx context.Context, req codeact.CodeRequest) codeact.CodeResult {
	ctx, span := o.inst.Tracer.Start(ctx, "sandbox.execute", trace.WithAttributes(
		AttrSandboxAction.String(req.Action),
		AttrSandboxCodeLength.Int(len(req.Code)),
	))
	defer span.End()
	start := time.Now()

	res := o.inner.Run(ctx, req)

	durationMs := float64(time.Since(start).Milliseconds())
	status := Outcome(res.Stdout)
	if status != "ok" && status != "truncated" {
		span.SetStatus(codes.Error, status)
	}
	span.SetAttributes(
		AttrSandboxStatus.String(status),
		AttrSandboxOutputSize.Int(len(res.Stdout)),
	)

	attrs := metric.WithAttributes(
		AttrSandboxAction.String(req.Action),
		attribute.String("status", status),
	)
	o.inst.SandboxExecutions.Add(ctx, 1, attrs)
	o.inst.SandboxDuration.Record(ctx, durationMs, metric.WithAttributes(AttrSandboxAction.String(req.Action)))
	o.inst.SandboxOutputSize.Record(ctx, int64(len(res.Stdout)), metric.WithAttributes(AttrSandboxAction.String(req.Action)))

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	if status != "ok" {
		rec.SetSeverity(otellog.SeverityWarn)
	}
	rec.SetBody(otellog.StringValue("sandbox executed"))
	rec.AddAttributes(
		otellog.String("sandbox.action", req.Action),
		otellog.String("sandbox.status", status),
		otellog.Int("sandbox.output_size", len(res.Stdout)),
		otellog.Float64("sandbox.duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return res
}

// Outcome classifies runner output by its tags: "blocked", "timeout",
// "error", "feedback", "truncated" or "ok".
func Outcome(stdout string) string {
	switch {
	case strings.HasPrefix(stdout, "[BLOCKED]"):
		return "blocked"
	case strings.Contains(stdout, "[TIMEOUT]"), strings.Contains(stdout, "timed out after"):
		return "timeout"
	case strings.Contains(stdout, "[SANDBOX_ERROR]"),
		strings.Contains(stdout, "[EXIT_CODE]"),
		strings.HasPrefix(stdout, "[ERROR]"):
		return "error"
	case strings.HasPrefix(stdout, "[SANDBOX_FEEDBACK]"):
		return "feedback"
	case strings.Contains(stdout, "[TRUNCATED]"):
		return "truncated"
	}
	return "ok"
}

var _ codeact.CodeRunner = (*ObservedRunner)(nil)
